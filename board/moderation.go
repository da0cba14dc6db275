// goban/board/moderation.go
package board

import (
	"fmt"
	"regexp"
	"time"

	"goban/models"
)

// requireModerator gates every moderation entry point.
func requireModerator(auth *models.AuthInfo) error {
	if auth == nil || !auth.IsModerator {
		return ErrUnauthorized
	}
	return nil
}

func requireAdmin(auth *models.AuthInfo) error {
	if auth == nil || !auth.IsAdmin {
		return ErrUnauthorized
	}
	return nil
}

// setStatus is the shared body of Approve and Hide: flip the status, close
// the report queue entry, audit, and regenerate.
func (s *Service) setStatus(auth *models.AuthInfo, postID int64, status models.ModerationStatus, action string) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}

	lock := s.lockBoard(post.BoardID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.SetModeration(postID, status); err != nil {
		return wrapStorage(err)
	}
	if err := s.store.ResolveReports(postID); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, action, postID, "", s.now())

	if status == models.StatusApproved && !post.IsThread() {
		cfg, err := s.store.GetBoard(post.BoardID)
		if err != nil {
			return wrapStorage(err)
		}
		// A post approved out of the pending queue bumps as of its own
		// creation time, never as of the approval.
		approved := *post
		approved.Status = models.StatusApproved
		if err := s.maybeBump(cfg, &approved, post.Created); err != nil {
			return err
		}
	}

	s.markAfterStatusChange(post)
	if err := s.pages.Rebuild(post.BoardID); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	s.logger.Info("Moderation status changed", "post", postID, "status", status.String(), "moderator", auth.AccountID)
	return nil
}

// Approve makes a pending or hidden post publicly visible.
func (s *Service) Approve(auth *models.AuthInfo, postID int64) error {
	return s.setStatus(auth, postID, models.StatusApproved, "approve")
}

// Hide removes a post from public pages without deleting it.
func (s *Service) Hide(auth *models.AuthInfo, postID int64) error {
	return s.setStatus(auth, postID, models.StatusHidden, "hide")
}

// Delete soft-deletes a post. Deleting a thread head takes the whole
// thread, its reports, and any now-orphaned attachment files with it.
func (s *Service) Delete(auth *models.AuthInfo, postID int64) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}

	lock := s.lockBoard(post.BoardID)
	lock.Lock()
	defer lock.Unlock()

	boardID, isThread, orphans, err := s.store.SoftDeletePost(postID)
	if err != nil {
		return wrapStorage(err)
	}
	s.removeFiles(orphans)
	s.store.AuditAction(auth.AccountID, "delete", postID, "", s.now())

	s.markAfterStatusChange(post)
	if err := s.pages.Rebuild(boardID); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	s.logger.Info("Post deleted by moderator", "post", postID, "thread", isThread, "moderator", auth.AccountID)
	return nil
}

// SetSticky pins or unpins a thread.
func (s *Service) SetSticky(auth *models.AuthInfo, threadID int64, on bool) error {
	return s.setThreadFlag(auth, threadID, on, "sticky", s.store.SetSticky)
}

// SetLocked locks or unlocks a thread against new replies.
func (s *Service) SetLocked(auth *models.AuthInfo, threadID int64, on bool) error {
	return s.setThreadFlag(auth, threadID, on, "lock", s.store.SetLocked)
}

func (s *Service) setThreadFlag(auth *models.AuthInfo, threadID int64, on bool, action string, set func(int64, bool) error) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	post, err := s.store.GetPost(threadID)
	if err != nil || !post.IsThread() {
		return fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}

	lock := s.lockBoard(post.BoardID)
	lock.Lock()
	defer lock.Unlock()

	if err := set(threadID, on); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, fmt.Sprintf("%s=%t", action, on), threadID, "", s.now())

	s.pages.MarkThread(post.BoardID, threadID)
	s.pages.MarkIndexes(post.BoardID)
	if err := s.pages.Rebuild(post.BoardID); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}

// BanIP bans the poster of a post. A zero duration is permanent.
func (s *Service) BanIP(auth *models.AuthInfo, postID int64, duration time.Duration, reason string) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	if post.IPHash == "" {
		return fmt.Errorf("%w: post %d has no recorded poster", ErrNotFound, postID)
	}
	if err := s.store.InsertBan(post.IPHash, reason, duration, s.now()); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, "ban", postID, reason, s.now())
	s.logger.Info("IP banned", "post", postID, "permanent", duration == 0, "moderator", auth.AccountID)
	return nil
}

// LiftBan removes the ban covering the poster of a post.
func (s *Service) LiftBan(auth *models.AuthInfo, postID int64) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	post, err := s.store.GetPost(postID)
	if err != nil {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	if err := s.store.DeleteBan(post.IPHash); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, "lift_ban", postID, "", s.now())
	return nil
}

// --- Keyword rule administration (admin only) ---

// AddKeyword appends a rule to the end of the scan order. Regexp patterns
// are validated up front so a broken rule never reaches the scanner.
func (s *Service) AddKeyword(auth *models.AuthInfo, rule *models.KeywordRule) error {
	if err := requireAdmin(auth); err != nil {
		return err
	}
	if rule.Pattern == "" {
		return reject(RejectSize, "Keyword pattern must not be empty.")
	}
	if rule.IsRegexp {
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return reject(RejectSize, "Invalid regexp pattern: %v", err)
		}
	}
	rule.Created = s.now()
	if _, err := s.store.InsertKeyword(rule); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, "add_keyword", rule.ID, rule.Pattern, s.now())
	return nil
}

// RemoveKeyword deletes a rule.
func (s *Service) RemoveKeyword(auth *models.AuthInfo, ruleID int64) error {
	if err := requireAdmin(auth); err != nil {
		return err
	}
	if err := s.store.DeleteKeyword(ruleID); err != nil {
		return fmt.Errorf("%w: keyword rule %d", ErrNotFound, ruleID)
	}
	s.store.AuditAction(auth.AccountID, "remove_keyword", ruleID, "", s.now())
	return nil
}

// Keywords lists every rule in scan order.
func (s *Service) Keywords(auth *models.AuthInfo) ([]models.KeywordRule, error) {
	if err := requireModerator(auth); err != nil {
		return nil, err
	}
	rules, err := s.store.ListKeywords()
	if err != nil {
		return nil, wrapStorage(err)
	}
	return rules, nil
}

// --- Report queue ---

// OpenReports returns the moderation queue.
func (s *Service) OpenReports(auth *models.AuthInfo, limit int) ([]models.Report, error) {
	if err := requireModerator(auth); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	reports, err := s.store.ListOpenReports(limit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return reports, nil
}

// DismissReports closes every open report on a post without changing its
// status.
func (s *Service) DismissReports(auth *models.AuthInfo, postID int64) error {
	if err := requireModerator(auth); err != nil {
		return err
	}
	if err := s.store.ResolveReports(postID); err != nil {
		return wrapStorage(err)
	}
	s.store.AuditAction(auth.AccountID, "dismiss_reports", postID, "", s.now())
	return nil
}

// AuditLog returns the most recent moderation actions.
func (s *Service) AuditLog(auth *models.AuthInfo, limit int) ([]models.ModAction, error) {
	if err := requireModerator(auth); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	actions, err := s.store.ListModActions(limit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return actions, nil
}

// ModThreadView returns a thread with every non-deleted reply regardless of
// moderation status, for the review UI. Static pages never show these.
func (s *Service) ModThreadView(auth *models.AuthInfo, threadID int64) (*models.ThreadSnapshot, error) {
	if err := requireModerator(auth); err != nil {
		return nil, err
	}
	op, err := s.store.GetPost(threadID)
	if err != nil || !op.IsThread() {
		return nil, fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}
	replies, err := s.store.ListReplies(threadID, false)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &models.ThreadSnapshot{Op: *op, Replies: replies}, nil
}
