// goban/handlers/actions.go
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"goban/board"
	"goban/config"
	"goban/models"
	"goban/utils"
)

// HandlePost is the main handler for creating new threads and replies.
func HandlePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandlePost")

	if err := r.ParseMultipartForm(config.MaxFileSize + 1024); err != nil {
		logger.Warn("Form parsing error", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Form parsing error: " + err.Error()}, app)
		return
	}

	ip := utils.GetIPAddress(r)
	if !app.RateLimiter().GetLimiter(ip).Allow() {
		logger.Warn("Rate limit exceeded", "ip", ip)
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded. Please wait a moment."}, app)
		return
	}

	parent, _ := strconv.ParseInt(r.FormValue("parent"), 10, 64)
	req := &board.SubmitRequest{
		BoardID: r.FormValue("board_id"),
		Parent:  parent,
		IP:      ip,
		Name:    r.FormValue("name"),
		Email:   r.FormValue("email"),
		Subject: r.FormValue("subject"),
		Message: r.FormValue("message"),
	}
	if cookieID, ok := r.Context().Value(UserCookieKey).(string); ok {
		req.CookieID = cookieID
	}

	upload, cleanup, err := spoolUpload(r)
	if err != nil {
		logger.Warn("Upload spooling failed", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read uploaded file."}, app)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}
	req.Upload = upload

	post, err := app.Boards().Submit(req)
	if err != nil {
		respondServiceError(w, err, app)
		return
	}

	threadID := post.ID
	if !post.IsThread() {
		threadID = post.Parent
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     post.ID,
		"thread": threadID,
		"status": post.Status.String(),
		"url":    fmt.Sprintf("/%s/res/%d.html#%d", post.BoardID, threadID, post.ID),
	}, app)
}

// spoolUpload writes the request's file part, if any, to a temp file and
// returns an Upload describing it plus a cleanup func.
func spoolUpload(r *http.Request) (*models.Upload, func(), error) {
	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = file.Close() }()

	tmp, err := os.CreateTemp("", "goban-upload-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	size, err := io.Copy(tmp, file)
	cerr := tmp.Close()
	if err != nil || cerr != nil {
		cleanup()
		if err == nil {
			err = cerr
		}
		return nil, nil, err
	}

	return &models.Upload{
		TempPath:     tmp.Name(),
		DeclaredName: header.Filename,
		DeclaredMIME: header.Header.Get("Content-Type"),
		Size:         size,
	}, cleanup, nil
}

// HandleReport lets users flag a post for moderator attention.
func HandleReport(w http.ResponseWriter, r *http.Request, app App) {
	ip := utils.GetIPAddress(r)
	if !app.RateLimiter().GetLimiter(ip).Allow() {
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded. Please wait a moment."}, app)
		return
	}

	postID, err := strconv.ParseInt(r.FormValue("post_id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}
	reason := r.FormValue("reason")
	if len(reason) > 200 {
		reason = reason[:200]
	}

	if err := app.Boards().Report(ip, postID, reason); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Report submitted."}, app)
}

// HandleCookieDelete lets a poster delete their own post, authenticated by
// the identifier cookie issued when it was made.
func HandleCookieDelete(w http.ResponseWriter, r *http.Request, app App) {
	postID, err := strconv.ParseInt(r.FormValue("post_id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post id."}, app)
		return
	}

	cookieID, _ := r.Context().Value(UserCookieKey).(string)
	if err := app.Boards().UserDelete(cookieID, postID); err != nil {
		respondServiceError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Post deleted."}, app)
}
