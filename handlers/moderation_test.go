// goban/handlers/moderation_test.go
package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"goban/models"
)

func createTestPost(t *testing.T, app *MockApplication, ip, message string) string {
	t.Helper()
	req := postForm(t, map[string]string{"board_id": "b", "message": message}, nil)
	req.Header.Set("X-Real-IP", ip)
	rr := httptest.NewRecorder()
	HandlePost(rr, req, app)
	if rr.Code != http.StatusOK {
		t.Fatalf("post = %d: %s", rr.Code, rr.Body.String())
	}
	return strconv.FormatInt(int64(decodeJSON(t, rr)["id"].(float64)), 10)
}

func modForm(t *testing.T, path, body string, auth *models.AuthInfo) *http.Request {
	t.Helper()
	req := newTestRequest(t, "POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return withAuth(req, auth)
}

func TestModEndpointsRejectWithoutPrivileges(t *testing.T) {
	app := setupTestApp(t)
	id := createTestPost(t, app, "10.0.0.1", "untouchable")

	rr := httptest.NewRecorder()
	HandleHide(rr, modForm(t, "/mod/hide", "post_id="+id, &models.AuthInfo{}), app)
	if rr.Code != http.StatusForbidden {
		t.Errorf("hide without auth = %d, want 403", rr.Code)
	}

	// Keyword administration is admin-only.
	mod := &models.AuthInfo{IsModerator: true, AccountID: "moderator"}
	rr = httptest.NewRecorder()
	HandleAddKeyword(rr, modForm(t, "/mod/keywords", "pattern=spam&action=report", mod), app)
	if rr.Code != http.StatusForbidden {
		t.Errorf("add keyword as moderator = %d, want 403", rr.Code)
	}
}

func TestModHideApproveRoundtrip(t *testing.T) {
	app := setupTestApp(t)
	id := createTestPost(t, app, "10.0.0.1", "moderated post")
	mod := &models.AuthInfo{IsModerator: true, AccountID: "moderator"}

	rr := httptest.NewRecorder()
	HandleHide(rr, modForm(t, "/mod/hide", "post_id="+id, mod), app)
	if rr.Code != http.StatusOK {
		t.Fatalf("hide = %d: %s", rr.Code, rr.Body.String())
	}

	postID, _ := strconv.ParseInt(id, 10, 64)
	got, err := app.Store().GetPost(postID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Status != models.StatusHidden {
		t.Errorf("status after hide = %v, want hidden", got.Status)
	}

	rr = httptest.NewRecorder()
	HandleApprove(rr, modForm(t, "/mod/approve", "post_id="+id, mod), app)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve = %d: %s", rr.Code, rr.Body.String())
	}
}

func TestModThreadViewShowsPending(t *testing.T) {
	app := setupTestApp(t)
	admin := &models.AuthInfo{IsModerator: true, IsAdmin: true, AccountID: "admin"}

	// Hide rule sends matching posts to the pending queue.
	rr := httptest.NewRecorder()
	HandleAddKeyword(rr, modForm(t, "/mod/keywords", "pattern=shady&action=hide", admin), app)
	if rr.Code != http.StatusOK {
		t.Fatalf("add keyword = %d: %s", rr.Code, rr.Body.String())
	}

	threadID := createTestPost(t, app, "10.0.0.1", "clean thread")

	reply := postForm(t, map[string]string{"board_id": "b", "parent": threadID, "message": "shady business"}, nil)
	reply.Header.Set("X-Real-IP", "10.0.0.2")
	rr = httptest.NewRecorder()
	HandlePost(rr, reply, app)
	if rr.Code != http.StatusOK {
		t.Fatalf("reply = %d: %s", rr.Code, rr.Body.String())
	}
	if decodeJSON(t, rr)["status"] != "pending" {
		t.Fatal("keyword-hidden reply not pending")
	}

	// The moderator view sees the pending reply the public pages omit.
	tid, _ := strconv.ParseInt(threadID, 10, 64)
	snap, err := app.Boards().ModThreadView(admin, tid)
	if err != nil {
		t.Fatalf("ModThreadView failed: %v", err)
	}
	if len(snap.Replies) != 1 || snap.Replies[0].Status != models.StatusPending {
		t.Errorf("mod view replies = %+v, want one pending reply", snap.Replies)
	}
}

func TestRouterAuthMiddleware(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)

	// No key: the /mod tree is closed.
	req := httptest.NewRequest("GET", "/mod/reports", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("GET /mod/reports without key = %d, want 403", rr.Code)
	}

	// Wrong key: still closed.
	req = httptest.NewRequest("GET", "/mod/reports", nil)
	req.Header.Set("X-Mod-Key", "wrong-key")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("GET /mod/reports with wrong key = %d, want 403", rr.Code)
	}

	// Valid moderator key opens it.
	req = httptest.NewRequest("GET", "/mod/reports", nil)
	req.Header.Set("X-Mod-Key", testModKey)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /mod/reports with mod key = %d, want 200", rr.Code)
	}

	// The admin key works everywhere a moderator key does.
	req = httptest.NewRequest("GET", "/mod/log", nil)
	req.Header.Set("X-Mod-Key", testAdminKey)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /mod/log with admin key = %d, want 200", rr.Code)
	}
}
