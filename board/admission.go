// goban/board/admission.go
package board

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"net/http"
	"os"
	"strings"
	"time"

	"goban/config"
	"goban/models"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// checkBan rejects submissions from banned IP hashes. Expired bans are
// purged first so they can never match.
func (s *Service) checkBan(ipHash string, now time.Time) error {
	if err := s.store.PurgeExpiredBans(now); err != nil {
		return wrapStorage(err)
	}
	ban, err := s.store.ActiveBan(ipHash, now)
	if err != nil {
		return wrapStorage(err)
	}
	if ban == nil {
		return nil
	}
	msg := "You are banned."
	if ban.Reason != "" {
		msg = fmt.Sprintf("You are banned: %s", ban.Reason)
	}
	if ban.Permanent() {
		msg += " This ban is permanent."
	} else {
		msg += fmt.Sprintf(" Expires %s.", ban.ExpiresAt.Time.UTC().Format("2006-01-02 15:04"))
	}
	return reject(RejectBan, "%s", msg)
}

// checkFlood enforces the per-IP posting interval on a board.
func (s *Service) checkFlood(cfg *models.BoardConfig, ipHash string, now time.Time) error {
	if cfg.FloodWindow <= 0 {
		return nil
	}
	last, ok, err := s.store.LastPostTime(cfg.ID, ipHash)
	if err != nil {
		return wrapStorage(err)
	}
	if !ok {
		return nil
	}
	elapsed := now.Sub(last)
	if elapsed >= cfg.FloodWindow {
		return nil
	}
	wait := cfg.FloodWindow - elapsed
	secs := int(wait.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	r := reject(RejectFlood, "Please wait %d seconds before posting again.", secs)
	r.Wait = wait
	return r
}

// checkFields enforces text length limits and requires some content.
func checkFields(req *SubmitRequest) error {
	if len(req.Name) > config.MaxNameLen {
		return reject(RejectSize, "Name too long (max %d characters).", config.MaxNameLen)
	}
	if len(req.Email) > config.MaxEmailLen {
		return reject(RejectSize, "Email too long (max %d characters).", config.MaxEmailLen)
	}
	if len(req.Subject) > config.MaxSubjectLen {
		return reject(RejectSize, "Subject too long (max %d characters).", config.MaxSubjectLen)
	}
	if len(req.Message) > config.MaxMessageLen {
		return reject(RejectSize, "Message too long (max %d characters).", config.MaxMessageLen)
	}
	if strings.TrimSpace(req.Message) == "" && req.Upload == nil {
		return reject(RejectSize, "A message or an image is required.")
	}
	return nil
}

// validatedUpload is an upload that passed admission: raw bytes plus the
// sniffed media type and content hash.
type validatedUpload struct {
	Data   []byte
	MIME   string
	Hash   string
	Width  int
	Height int
	Name   string
}

// validateUpload reads the temp file and enforces the attachment policy:
// byte size, declared and sniffed MIME against the allow-list, decodable
// image within pixel limits, and board-scoped content-hash dedup.
func (s *Service) validateUpload(boardID string, up *models.Upload) (*validatedUpload, error) {
	if up.Size > config.MaxFileSize {
		return nil, reject(RejectSize, "File too large (max %d bytes).", config.MaxFileSize)
	}
	if !config.AllowedMIMETypes[up.DeclaredMIME] {
		return nil, reject(RejectUpload, "File type %s is not allowed.", up.DeclaredMIME)
	}

	data, err := os.ReadFile(up.TempPath)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if len(data) == 0 {
		return nil, reject(RejectUpload, "Uploaded file is empty.")
	}
	if int64(len(data)) > config.MaxFileSize {
		return nil, reject(RejectSize, "File too large (max %d bytes).", config.MaxFileSize)
	}

	// Sniff the real content type; the declared one is advisory.
	sniffed := http.DetectContentType(data)
	if !config.AllowedMIMETypes[sniffed] {
		return nil, reject(RejectUpload, "File content does not match an allowed image type.")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, reject(RejectUpload, "File is not a valid image.")
	}
	if cfg.Width > config.MaxWidth || cfg.Height > config.MaxHeight {
		return nil, reject(RejectSize, "Image dimensions too large (max %dx%d).", config.MaxWidth, config.MaxHeight)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if dupID, found, err := s.store.FindAttachment(boardID, hash); err != nil {
		return nil, wrapStorage(err)
	} else if found {
		r := reject(RejectDuplicate, "That file has already been posted in >>%d.", dupID)
		r.Duplicate = dupID
		return nil, r
	}

	return &validatedUpload{
		Data:   data,
		MIME:   sniffed,
		Hash:   hash,
		Width:  cfg.Width,
		Height: cfg.Height,
		Name:   up.DeclaredName,
	}, nil
}

// checkParent validates the thread a reply targets: it must exist on the
// same board, be a thread head, be publicly visible, and not be locked.
func (s *Service) checkParent(boardID string, parent int64) (*models.Post, error) {
	op, err := s.store.GetPost(parent)
	if err != nil {
		return nil, reject(RejectParent, "Thread >>%d does not exist.", parent)
	}
	if op.BoardID != boardID || !op.IsThread() || op.Status != models.StatusApproved {
		return nil, reject(RejectParent, "Thread >>%d does not exist.", parent)
	}
	if op.Locked {
		return nil, reject(RejectParent, "Thread >>%d is locked.", parent)
	}
	return op, nil
}
