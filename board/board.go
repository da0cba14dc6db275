// goban/board/board.go
package board

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"goban/database"
	"goban/models"
	"goban/utils"
)

// Pages is the regeneration engine as seen from the pipeline: mark what a
// mutation made stale, then rebuild.
type Pages interface {
	MarkThread(boardID string, threadID int64)
	MarkIndexes(boardID string)
	Rebuild(boardID string) error
	RebuildAll(boardID string) error
}

// Service runs the posting pipeline: admission control, content store
// writes, bump and retention, then static page regeneration. All mutations
// to one board happen under that board's lock, so admission checks and the
// write they guard are atomic with respect to each other.
type Service struct {
	store  *database.Store
	files  utils.FileStore
	pages  Pages
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	boards map[string]*sync.Mutex
}

func NewService(store *database.Store, files utils.FileStore, pages Pages, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		files:  files,
		pages:  pages,
		logger: logger,
		now:    utils.SQLNow,
		boards: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockBoard(boardID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.boards[boardID]
	if !ok {
		l = &sync.Mutex{}
		s.boards[boardID] = l
	}
	return l
}

// SubmitRequest is a raw submission before admission control.
type SubmitRequest struct {
	BoardID  string
	Parent   int64 // 0 = new thread
	IP       string
	CookieID string
	Name     string
	Email    string
	Subject  string
	Message  string
	Upload   *models.Upload
}

// sage reports whether the email field suppresses the bump.
func sage(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), "sage")
}

// Submit runs a submission through the full pipeline and returns the stored
// post. Policy refusals come back as *Rejection; infrastructure failures
// wrap ErrStorage or ErrRender.
func (s *Service) Submit(req *SubmitRequest) (*models.Post, error) {
	cfg, err := s.store.GetBoard(req.BoardID)
	if err != nil {
		return nil, fmt.Errorf("%w: board %q", ErrNotFound, req.BoardID)
	}

	lock := s.lockBoard(req.BoardID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	ipHash := utils.HashIP(req.IP)
	cookieHash := ""
	if req.CookieID != "" {
		cookieHash = utils.HashIP(req.CookieID)
	}

	if err := s.checkBan(ipHash, now); err != nil {
		return nil, err
	}
	if err := s.checkFlood(cfg, ipHash, now); err != nil {
		return nil, err
	}
	if err := checkFields(req); err != nil {
		return nil, err
	}

	var upload *validatedUpload
	if req.Upload != nil {
		upload, err = s.validateUpload(req.BoardID, req.Upload)
		if err != nil {
			return nil, err
		}
	}

	match, err := s.scanKeywords(req.Name, req.Email, req.Subject, req.Message)
	if err != nil {
		return nil, err
	}
	status := models.StatusApproved
	if match != nil {
		switch match.Rule.Action {
		case models.ActionDelete:
			return nil, reject(RejectKeyword, "Your post contains a blocked keyword.")
		case models.ActionBan:
			reason := fmt.Sprintf("Keyword rule #%d", match.Rule.ID)
			if err := s.store.InsertBan(ipHash, reason, match.Rule.BanDuration, now); err != nil {
				return nil, wrapStorage(err)
			}
			if match.Rule.BanDuration > 0 {
				expiry := now.Add(match.Rule.BanDuration).UTC().Format("2006-01-02 15:04")
				return nil, reject(RejectKeyword, "You have been banned until %s. Reason: %s.", expiry, reason)
			}
			return nil, reject(RejectKeyword, "You have been banned permanently. Reason: %s.", reason)
		case models.ActionHide:
			status = models.StatusPending
		}
	}

	if req.Parent != 0 {
		if _, err := s.checkParent(req.BoardID, req.Parent); err != nil {
			return nil, err
		}
	}

	name, trip := utils.GenerateTripcode(req.Name)
	if name == "" {
		name = "Anonymous"
	}
	post := &models.Post{
		BoardID:    req.BoardID,
		Parent:     req.Parent,
		IPHash:     ipHash,
		CookieHash: cookieHash,
		Name:       name,
		Tripcode:   trip,
		Email:      req.Email,
		Subject:    req.Subject,
		Message:    FormatMessage(req.BoardID, req.Message),
		Status:     status,
		Created:    now,
		Bumped:     now,
	}
	// Subjects belong to thread heads only.
	if !post.IsThread() {
		post.Subject = ""
	}

	if upload != nil {
		att, err := s.saveAttachment(req.BoardID, upload, now)
		if err != nil {
			return nil, err
		}
		post.File = *att
	}

	if _, err := s.store.InsertPost(post); err != nil {
		return nil, wrapStorage(err)
	}

	if match != nil && match.Rule.Action == models.ActionReport {
		if _, err := s.store.InsertReport(post.ID, "system", fmt.Sprintf("Keyword rule #%d matched %s", match.Rule.ID, match.Field), now); err != nil {
			s.logger.Error("Failed to file keyword report", "post", post.ID, "error", err)
		}
	}

	if !post.IsThread() {
		if err := s.maybeBump(cfg, post, now); err != nil {
			return nil, err
		}
	}
	if err := s.trimThreads(cfg, now); err != nil {
		return nil, err
	}

	s.markAfterPost(post)
	if err := s.pages.Rebuild(req.BoardID); err != nil {
		return post, fmt.Errorf("%w: %v", ErrRender, err)
	}

	s.logger.Info("Post accepted", "board", req.BoardID, "post", post.ID, "thread", post.IsThread(), "status", post.Status.String())
	return post, nil
}

// maybeBump applies the bump rule to a freshly inserted reply: approved,
// not saged, and the thread still under its bump limit. Hidden and pending
// replies occupy bump-limit slots but never bump.
func (s *Service) maybeBump(cfg *models.BoardConfig, reply *models.Post, at time.Time) error {
	if reply.Status != models.StatusApproved || sage(reply.Email) {
		return nil
	}
	count, err := s.store.CountReplies(reply.Parent)
	if err != nil {
		return wrapStorage(err)
	}
	if cfg.MaxReplies != 0 && count > cfg.MaxReplies {
		return nil
	}
	if err := s.store.BumpThread(reply.Parent, at); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// trimThreads retires the least recently bumped threads once a board is
// over its thread cap. Sticky threads are never trimmed.
func (s *Service) trimThreads(cfg *models.BoardConfig, now time.Time) error {
	if cfg.MaxThreads <= 0 {
		return nil
	}
	total, err := s.store.CountThreads(cfg.ID, false)
	if err != nil {
		return wrapStorage(err)
	}
	excess := total - cfg.MaxThreads
	if excess <= 0 {
		return nil
	}
	ids, err := s.store.OldestThreads(cfg.ID, excess)
	if err != nil {
		return wrapStorage(err)
	}
	for _, id := range ids {
		_, _, orphans, err := s.store.SoftDeletePost(id)
		if err != nil {
			return wrapStorage(err)
		}
		s.removeFiles(orphans)
		s.pages.MarkThread(cfg.ID, id)
		s.logger.Info("Thread trimmed", "board", cfg.ID, "thread", id)
	}
	return nil
}

// removeFiles deletes orphaned attachment files from the file store.
// Failures are logged, not fatal: the database row is already gone.
func (s *Service) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.files.Remove(p); err != nil {
			s.logger.Error("Failed to remove orphaned file", "path", p, "error", err)
		}
	}
}

// markAfterPost flags the artifacts a new post made stale. A new thread or
// a bumped reply reorders the listing, so every index page goes stale.
func (s *Service) markAfterPost(post *models.Post) {
	if post.IsThread() {
		s.pages.MarkThread(post.BoardID, post.ID)
	} else {
		s.pages.MarkThread(post.BoardID, post.Parent)
	}
	s.pages.MarkIndexes(post.BoardID)
}

// Report files a user report against a post. Crossing the board's report
// threshold flips an approved post back to pending and regenerates.
func (s *Service) Report(ip string, postID int64, reason string) error {
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	cfg, err := s.store.GetBoard(post.BoardID)
	if err != nil {
		return wrapStorage(err)
	}

	lock := s.lockBoard(post.BoardID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	ipHash := utils.HashIP(ip)
	count, err := s.store.InsertReport(postID, ipHash, reason, now)
	if err != nil {
		return wrapStorage(err)
	}
	s.logger.Info("Post reported", "post", postID, "open_reports", count)

	if cfg.AutoHideReports > 0 && count >= cfg.AutoHideReports && post.Status == models.StatusApproved {
		if err := s.store.SetModeration(postID, models.StatusPending); err != nil {
			return wrapStorage(err)
		}
		s.markAfterStatusChange(post)
		if err := s.pages.Rebuild(post.BoardID); err != nil {
			return fmt.Errorf("%w: %v", ErrRender, err)
		}
		s.logger.Info("Post auto-hidden by report threshold", "post", postID)
	}
	return nil
}

// UserDelete lets a poster remove their own post, identified by the cookie
// hash issued when it was made.
func (s *Service) UserDelete(cookieID string, postID int64) error {
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	if cookieID == "" || post.CookieHash != utils.HashIP(cookieID) {
		return ErrUnauthorized
	}

	lock := s.lockBoard(post.BoardID)
	lock.Lock()
	defer lock.Unlock()

	boardID, _, orphans, err := s.store.SoftDeletePost(postID)
	if err != nil {
		return wrapStorage(err)
	}
	s.removeFiles(orphans)
	s.markAfterStatusChange(post)
	if err := s.pages.Rebuild(boardID); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	s.logger.Info("Post deleted by author", "post", postID)
	return nil
}

// markAfterStatusChange flags artifacts stale after a visibility change.
// Thread membership or ordering may have shifted, so indexes go stale too.
func (s *Service) markAfterStatusChange(post *models.Post) {
	if post.IsThread() {
		s.pages.MarkThread(post.BoardID, post.ID)
	} else {
		s.pages.MarkThread(post.BoardID, post.Parent)
	}
	s.pages.MarkIndexes(post.BoardID)
}

// RebuildBoard regenerates every page of a board from scratch.
func (s *Service) RebuildBoard(boardID string) error {
	lock := s.lockBoard(boardID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.pages.RebuildAll(boardID); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}

// Store exposes the content store for read paths.
func (s *Service) Store() *database.Store { return s.store }
