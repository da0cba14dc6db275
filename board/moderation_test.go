// goban/board/moderation_test.go
package board

import (
	"errors"
	"testing"
	"time"

	"goban/models"
)

var (
	modAuth   = &models.AuthInfo{IsModerator: true, AccountID: "mod-test"}
	adminAuth = &models.AuthInfo{IsModerator: true, IsAdmin: true, AccountID: "admin-test"}
	noAuth    = &models.AuthInfo{}
)

func TestModerationRequiresPrivileges(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	th := submitThread(t, svc, "10.0.0.1", "target")

	if err := svc.Hide(noAuth, th.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Hide without auth = %v, want ErrUnauthorized", err)
	}
	if err := svc.Delete(nil, th.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Delete with nil auth = %v, want ErrUnauthorized", err)
	}
	// Keyword administration needs admin, moderator is not enough.
	rule := &models.KeywordRule{Pattern: "x", Action: models.ActionReport}
	if err := svc.AddKeyword(modAuth, rule); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("AddKeyword as moderator = %v, want ErrUnauthorized", err)
	}
	if err := svc.AddKeyword(adminAuth, rule); err != nil {
		t.Errorf("AddKeyword as admin failed: %v", err)
	}
}

func TestHideAndApprove(t *testing.T) {
	svc, store, _, _ := setupTestService(t)
	th := submitThread(t, svc, "10.0.0.1", "visible thread")

	if err := svc.Hide(modAuth, th.ID); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	got, _ := store.GetPost(th.ID)
	if got.Status != models.StatusHidden {
		t.Errorf("status after hide = %v, want hidden", got.Status)
	}

	// Hidden thread heads drop out of the public snapshot set.
	snap, err := store.Snapshot("b")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	for _, thread := range snap.Threads {
		if thread.Op.ID == th.ID && thread.Op.Status == models.StatusApproved {
			t.Error("hidden thread still approved in snapshot")
		}
	}

	if err := svc.Approve(modAuth, th.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	got, _ = store.GetPost(th.ID)
	if got.Status != models.StatusApproved {
		t.Errorf("status after approve = %v, want approved", got.Status)
	}
}

func TestApproveBumpsAsOfCreation(t *testing.T) {
	svc, store, _, clock := setupTestService(t)
	addRule(t, svc, "pending-word", false, models.ActionHide, 0)

	th := submitThread(t, svc, "10.0.0.1", "op")
	opBump, _ := store.GetPost(th.ID)

	clock.Advance(time.Minute)
	reply := submitReply(t, svc, "10.0.0.2", th.ID, "pending-word inside", "")
	if reply.Status != models.StatusPending {
		t.Fatalf("reply status = %v, want pending", reply.Status)
	}
	// A pending reply does not bump on arrival.
	got, _ := store.GetPost(th.ID)
	if !got.Bumped.Equal(opBump.Bumped) {
		t.Fatal("pending reply bumped the thread")
	}

	// Approval much later still bumps as of the reply's creation time.
	clock.Advance(time.Hour)
	if err := svc.Approve(modAuth, reply.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	got, _ = store.GetPost(th.ID)
	if !got.Bumped.Equal(reply.Created) {
		t.Errorf("bumped = %v, want reply creation time %v", got.Bumped, reply.Created)
	}
}

func TestModDeleteResolvesReports(t *testing.T) {
	svc, store, _, clock := setupTestService(t)
	th := submitThread(t, svc, "10.0.0.1", "reported")
	clock.Advance(time.Minute)

	if err := svc.Report("10.1.0.1", th.ID, "spam"); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if err := svc.Delete(modAuth, th.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	count, err := store.CountOpenReports(th.ID)
	if err != nil || count != 0 {
		t.Errorf("open reports after delete = %d, err %v, want 0", count, err)
	}
}

func TestBanAndLiftViaPost(t *testing.T) {
	svc, _, _, clock := setupTestService(t)
	th := submitThread(t, svc, "10.0.0.5", "soon banned")

	if err := svc.BanIP(modAuth, th.ID, 0, "rule violation"); err != nil {
		t.Fatalf("BanIP failed: %v", err)
	}
	clock.Advance(time.Minute)
	_, err := svc.Submit(&SubmitRequest{BoardID: "b", IP: "10.0.0.5", Message: "while banned"})
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Kind != RejectBan {
		t.Fatalf("Submit while banned = %v, want ban rejection", err)
	}

	if err := svc.LiftBan(modAuth, th.ID); err != nil {
		t.Fatalf("LiftBan failed: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := svc.Submit(&SubmitRequest{BoardID: "b", IP: "10.0.0.5", Message: "ban lifted"}); err != nil {
		t.Errorf("Submit after lift failed: %v", err)
	}
}

func TestAuditLogRecordsActions(t *testing.T) {
	svc, _, _, _ := setupTestService(t)
	th := submitThread(t, svc, "10.0.0.1", "audited")

	if err := svc.Hide(modAuth, th.ID); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := svc.SetSticky(modAuth, th.ID, true); err != nil {
		t.Fatalf("SetSticky failed: %v", err)
	}

	actions, err := svc.AuditLog(modAuth, 10)
	if err != nil {
		t.Fatalf("AuditLog failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("audit log has %d entries, want 2", len(actions))
	}
	// Newest first.
	if actions[0].Action != "sticky=true" || actions[1].Action != "hide" {
		t.Errorf("audit entries = %q, %q", actions[0].Action, actions[1].Action)
	}
	if _, err := svc.AuditLog(noAuth, 10); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("AuditLog without auth = %v, want ErrUnauthorized", err)
	}
}

func TestModThreadViewIncludesPending(t *testing.T) {
	svc, _, _, clock := setupTestService(t)
	addRule(t, svc, "quiet-word", false, models.ActionHide, 0)

	th := submitThread(t, svc, "10.0.0.1", "op")
	clock.Advance(time.Minute)
	pending := submitReply(t, svc, "10.0.0.2", th.ID, "quiet-word here", "")
	clock.Advance(time.Minute)
	visible := submitReply(t, svc, "10.0.0.3", th.ID, "normal reply", "")

	snap, err := svc.ModThreadView(modAuth, th.ID)
	if err != nil {
		t.Fatalf("ModThreadView failed: %v", err)
	}
	if len(snap.Replies) != 2 {
		t.Fatalf("mod view has %d replies, want 2 (pending included)", len(snap.Replies))
	}
	if snap.Replies[0].ID != pending.ID || snap.Replies[1].ID != visible.ID {
		t.Errorf("mod view order = %d, %d", snap.Replies[0].ID, snap.Replies[1].ID)
	}

	if _, err := svc.ModThreadView(noAuth, th.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ModThreadView without auth = %v, want ErrUnauthorized", err)
	}
}
