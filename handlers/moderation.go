// goban/handlers/moderation.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"goban/models"
	"goban/utils"

	"github.com/go-chi/chi/v5"
)

func formInt64(r *http.Request, field string) (int64, bool) {
	v, err := strconv.ParseInt(r.FormValue(field), 10, 64)
	return v, err == nil
}

// HandleApprove makes a pending or hidden post publicly visible again.
func HandleApprove(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	if err := app.Boards().Approve(authFrom(r), postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Post approved."}, app)
}

// HandleHide removes a post from public pages without deleting it.
func HandleHide(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	if err := app.Boards().Hide(authFrom(r), postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Post hidden."}, app)
}

// HandleModDelete soft-deletes a post or a whole thread.
func HandleModDelete(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	if err := app.Boards().Delete(authFrom(r), postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Post deleted."}, app)
}

// HandleToggleSticky pins or unpins a thread.
func HandleToggleSticky(w http.ResponseWriter, r *http.Request, app App) {
	handleThreadFlag(w, r, app, app.Boards().SetSticky, "Sticky updated.")
}

// HandleToggleLock locks or unlocks a thread.
func HandleToggleLock(w http.ResponseWriter, r *http.Request, app App) {
	handleThreadFlag(w, r, app, app.Boards().SetLocked, "Lock updated.")
}

func handleThreadFlag(w http.ResponseWriter, r *http.Request, app App, set func(*models.AuthInfo, int64, bool) error, msg string) {
	threadID, ok := formInt64(r, "thread_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread id."}, app)
		return
	}
	on := r.FormValue("on") == "1" || r.FormValue("on") == "true"
	if err := set(authFrom(r), threadID, on); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": msg}, app)
}

// HandleBan bans the poster of a post. duration_secs = 0 is permanent.
func HandleBan(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	durationSecs, _ := strconv.ParseInt(r.FormValue("duration_secs"), 10, 64)
	reason := r.FormValue("reason")

	if err := app.Boards().BanIP(authFrom(r), postID, time.Duration(durationSecs)*time.Second, reason); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Ban placed."}, app)
}

// HandleRemoveBan lifts the ban covering a post's poster.
func HandleRemoveBan(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	if err := app.Boards().LiftBan(authFrom(r), postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Ban lifted."}, app)
}

// HandleReports returns the open report queue.
func HandleReports(w http.ResponseWriter, r *http.Request, app App) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	reports, err := app.Boards().OpenReports(authFrom(r), limit)
	if err != nil {
		respondServiceError(w, err, app)
		return
	}
	payload := make([]map[string]interface{}, 0, len(reports))
	for _, rep := range reports {
		payload = append(payload, map[string]interface{}{
			"id":      rep.ID,
			"post_id": rep.PostID,
			"reason":  rep.Reason,
			"created": rep.Created.UTC(),
			"board":   rep.Post.BoardID,
			"status":  rep.Post.Status.String(),
			"message": rep.Post.Message,
			"is_op":   rep.Post.IsThread(),
		})
	}
	respondJSON(w, http.StatusOK, payload, app)
}

// HandleResolveReport dismisses all open reports on a post.
func HandleResolveReport(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := formInt64(r, "post_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	if err := app.Boards().DismissReports(authFrom(r), postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Reports resolved."}, app)
}

// HandleKeywords lists the keyword rules in scan order.
func HandleKeywords(w http.ResponseWriter, r *http.Request, app App) {
	rules, err := app.Boards().Keywords(authFrom(r))
	if err != nil {
		respondServiceError(w, err, app)
		return
	}
	payload := make([]map[string]interface{}, 0, len(rules))
	for _, rule := range rules {
		payload = append(payload, map[string]interface{}{
			"id":        rule.ID,
			"pattern":   rule.Pattern,
			"is_regexp": rule.IsRegexp,
			"action":    rule.Action.String(),
			"ban_secs":  int(rule.BanDuration.Seconds()),
			"created":   rule.Created.UTC(),
		})
	}
	respondJSON(w, http.StatusOK, payload, app)
}

// HandleAddKeyword appends a keyword rule (admin only).
func HandleAddKeyword(w http.ResponseWriter, r *http.Request, app App) {
	action, ok := parseKeywordAction(r.FormValue("action"))
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown action."}, app)
		return
	}
	banSecs, _ := strconv.ParseInt(r.FormValue("ban_secs"), 10, 64)
	rule := &models.KeywordRule{
		Pattern:     r.FormValue("pattern"),
		IsRegexp:    r.FormValue("is_regexp") == "1" || r.FormValue("is_regexp") == "true",
		Action:      action,
		BanDuration: time.Duration(banSecs) * time.Second,
	}
	if err := app.Boards().AddKeyword(authFrom(r), rule); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "Keyword rule added.", "id": rule.ID}, app)
}

func parseKeywordAction(s string) (models.KeywordAction, bool) {
	switch s {
	case "report":
		return models.ActionReport, true
	case "hide":
		return models.ActionHide, true
	case "delete":
		return models.ActionDelete, true
	case "ban":
		return models.ActionBan, true
	}
	return 0, false
}

// HandleRemoveKeyword deletes a keyword rule (admin only).
func HandleRemoveKeyword(w http.ResponseWriter, r *http.Request, app App) {
	ruleID, ok := formInt64(r, "rule_id")
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid rule id."}, app)
		return
	}
	if err := app.Boards().RemoveKeyword(authFrom(r), ruleID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Keyword rule removed."}, app)
}

// HandleModLog returns recent audit log entries.
func HandleModLog(w http.ResponseWriter, r *http.Request, app App) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	actions, err := app.Boards().AuditLog(authFrom(r), limit)
	if err != nil {
		respondServiceError(w, err, app)
		return
	}
	payload := make([]map[string]interface{}, 0, len(actions))
	for _, a := range actions {
		entry := map[string]interface{}{
			"id":        a.ID,
			"timestamp": a.Timestamp.UTC(),
			"moderator": a.Moderator,
			"action":    a.Action,
		}
		if a.TargetID.Valid {
			entry["target_id"] = a.TargetID.Int64
		}
		if a.Details.Valid {
			entry["details"] = a.Details.String
		}
		payload = append(payload, entry)
	}
	respondJSON(w, http.StatusOK, payload, app)
}

// HandleModThread returns a thread with pending and hidden replies
// included, for the review UI.
func HandleModThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread id."}, app)
		return
	}
	snap, err := app.Boards().ModThreadView(authFrom(r), threadID)
	if err != nil {
		respondServiceError(w, err, app)
		return
	}

	posts := make([]map[string]interface{}, 0, len(snap.Replies)+1)
	posts = append(posts, modPostView(snap.Op))
	for _, reply := range snap.Replies {
		posts = append(posts, modPostView(reply))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"thread": snap.Op.ID,
		"board":  snap.Op.BoardID,
		"posts":  posts,
	}, app)
}

func modPostView(p models.Post) map[string]interface{} {
	v := map[string]interface{}{
		"id":      p.ID,
		"parent":  p.Parent,
		"name":    p.Name,
		"subject": p.Subject,
		"message": p.Message,
		"status":  p.Status.String(),
		"created": p.Created.UTC(),
		"sticky":  p.Sticky,
		"locked":  p.Locked,
		"ip_hash": p.IPHash,
	}
	if p.HasFile() {
		v["file"] = p.File.Path
		v["thumb"] = p.File.ThumbPath
	}
	return v
}

// HandleRebuild regenerates every page of a board from scratch.
func HandleRebuild(w http.ResponseWriter, r *http.Request, app App) {
	boardID := r.FormValue("board_id")
	if _, err := app.Store().GetBoard(boardID); err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Board not found."}, app)
		return
	}
	if err := app.Boards().RebuildBoard(boardID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	app.Logger().Info("Full rebuild requested", "board", boardID, "ip", utils.GetIPAddress(r))
	respondJSON(w, http.StatusOK, map[string]string{"message": "Board rebuilt."}, app)
}
