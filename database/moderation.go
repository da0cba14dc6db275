// goban/database/moderation.go
package database

import (
	"database/sql"
	"fmt"
	"time"

	"goban/models"
)

// --- Bans ---

// ActiveBan returns the ban covering an IP hash at the given time, or nil.
func (st *Store) ActiveBan(ipHash string, now time.Time) (*models.Ban, error) {
	var ban models.Ban
	err := st.DB.QueryRow(`SELECT id, ip_hash, reason, created_at, expires_at FROM bans
		WHERE ip_hash = ? AND (expires_at IS NULL OR expires_at > ?)`, ipHash, now).Scan(
		&ban.ID, &ban.IPHash, &ban.Reason, &ban.Created, &ban.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ban, nil
}

// InsertBan records a ban. A zero duration means permanent. An existing ban
// on the same IP hash is replaced.
func (st *Store) InsertBan(ipHash, reason string, duration time.Duration, now time.Time) error {
	var expires interface{}
	if duration > 0 {
		expires = now.Add(duration)
	}
	_, err := st.DB.Exec(`INSERT INTO bans (ip_hash, reason, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(ip_hash) DO UPDATE SET reason = excluded.reason,
		created_at = excluded.created_at, expires_at = excluded.expires_at`,
		ipHash, reason, now, expires)
	if err != nil {
		return fmt.Errorf("failed to insert ban: %w", err)
	}
	return nil
}

// DeleteBan lifts any ban on an IP hash.
func (st *Store) DeleteBan(ipHash string) error {
	_, err := st.DB.Exec("DELETE FROM bans WHERE ip_hash = ?", ipHash)
	return err
}

// PurgeExpiredBans drops bans past their expiry so they stop matching.
func (st *Store) PurgeExpiredBans(now time.Time) error {
	_, err := st.DB.Exec("DELETE FROM bans WHERE expires_at IS NOT NULL AND expires_at <= ?", now)
	return err
}

// --- Keyword rules ---

// ListKeywords returns every rule in insertion order. Scan order matters:
// the first matching rule wins.
func (st *Store) ListKeywords() ([]models.KeywordRule, error) {
	rows, err := st.DB.Query("SELECT id, pattern, is_regexp, action, ban_seconds, created FROM keywords ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListKeywords", "error", err)
		}
	}()

	var rules []models.KeywordRule
	for rows.Next() {
		var r models.KeywordRule
		var action, banSecs int
		if err := rows.Scan(&r.ID, &r.Pattern, &r.IsRegexp, &action, &banSecs, &r.Created); err != nil {
			return nil, err
		}
		r.Action = models.KeywordAction(action)
		r.BanDuration = time.Duration(banSecs) * time.Second
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// InsertKeyword adds a rule at the end of the scan order.
func (st *Store) InsertKeyword(rule *models.KeywordRule) (int64, error) {
	res, err := st.DB.Exec("INSERT INTO keywords (pattern, is_regexp, action, ban_seconds, created) VALUES (?, ?, ?, ?, ?)",
		rule.Pattern, rule.IsRegexp, int(rule.Action), int(rule.BanDuration/time.Second), rule.Created)
	if err != nil {
		return 0, fmt.Errorf("failed to insert keyword rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rule.ID = id
	return id, nil
}

// DeleteKeyword removes a rule.
func (st *Store) DeleteKeyword(ruleID int64) error {
	res, err := st.DB.Exec("DELETE FROM keywords WHERE id = ?", ruleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Reports ---

// InsertReport files a report unless the same IP already reported the post.
// Returns the number of open reports on the post afterwards.
func (st *Store) InsertReport(postID int64, ipHash, reason string, now time.Time) (int, error) {
	var dup int
	err := st.DB.QueryRow("SELECT COUNT(*) FROM reports WHERE post_id = ? AND ip_hash = ? AND resolved = 0",
		postID, ipHash).Scan(&dup)
	if err != nil {
		return 0, err
	}
	if dup == 0 {
		if _, err := st.DB.Exec("INSERT INTO reports (post_id, reason, ip_hash, created_at, resolved) VALUES (?, ?, ?, ?, 0)",
			postID, reason, ipHash, now); err != nil {
			return 0, fmt.Errorf("failed to insert report: %w", err)
		}
	}
	return st.CountOpenReports(postID)
}

// CountOpenReports counts unresolved reports on a post.
func (st *Store) CountOpenReports(postID int64) (int, error) {
	var count int
	err := st.DB.QueryRow("SELECT COUNT(*) FROM reports WHERE post_id = ? AND resolved = 0", postID).Scan(&count)
	return count, err
}

// ListOpenReports returns the moderation queue, newest first, with each
// report's post attached.
func (st *Store) ListOpenReports(limit int) ([]models.Report, error) {
	rows, err := st.DB.Query(`SELECT r.id, r.post_id, r.reason, r.ip_hash, r.created_at, r.resolved, `+prefixedPostColumns("p")+`
		FROM reports r JOIN posts p ON p.id = r.post_id
		WHERE r.resolved = 0 AND p.deleted = 0
		ORDER BY r.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListOpenReports", "error", err)
		}
	}()

	var reports []models.Report
	for rows.Next() {
		var rep models.Report
		var p models.Post
		var ipHash, cookieHash, name, trip, email, subject, message sql.NullString
		var fileOrig, filePath, fileHash, thumbPath sql.NullString
		var status int
		var created, bumped sql.NullTime
		err := rows.Scan(&rep.ID, &rep.PostID, &rep.Reason, &rep.IPHash, &rep.Created, &rep.Resolved,
			&p.ID, &p.BoardID, &p.Parent, &ipHash, &cookieHash, &name, &trip, &email, &subject, &message,
			&fileOrig, &filePath, &fileHash, &p.File.Size, &p.File.Width, &p.File.Height,
			&thumbPath, &p.File.ThumbWidth, &p.File.ThumbHeight, &status, &p.Sticky, &p.Locked, &p.Deleted,
			&created, &bumped)
		if err != nil {
			return nil, err
		}
		p.IPHash, p.CookieHash = ipHash.String, cookieHash.String
		p.Name, p.Tripcode, p.Email, p.Subject, p.Message = name.String, trip.String, email.String, subject.String, message.String
		p.File.OriginalName, p.File.Path, p.File.Hash, p.File.ThumbPath = fileOrig.String, filePath.String, fileHash.String, thumbPath.String
		p.Status = models.ModerationStatus(status)
		p.Created, p.Bumped = created.Time, bumped.Time
		rep.Post = p
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// ResolveReports closes every open report on a post.
func (st *Store) ResolveReports(postID int64) error {
	_, err := st.DB.Exec("UPDATE reports SET resolved = 1 WHERE post_id = ?", postID)
	return err
}

// --- Audit log ---

// AuditAction appends a row to the moderation audit log.
func (st *Store) AuditAction(moderator, action string, targetID int64, details string, now time.Time) {
	var target interface{}
	if targetID != 0 {
		target = targetID
	}
	var det interface{}
	if details != "" {
		det = details
	}
	_, err := st.DB.Exec("INSERT INTO mod_actions (timestamp, moderator, action, target_id, details) VALUES (?, ?, ?, ?, ?)",
		now, moderator, action, target, det)
	if err != nil {
		st.logger.Error("Failed to write audit log entry", "action", action, "error", err)
	}
}

// ListModActions returns the most recent audit log entries.
func (st *Store) ListModActions(limit int) ([]models.ModAction, error) {
	rows, err := st.DB.Query("SELECT id, timestamp, moderator, action, target_id, details FROM mod_actions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListModActions", "error", err)
		}
	}()

	var actions []models.ModAction
	for rows.Next() {
		var a models.ModAction
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Moderator, &a.Action, &a.TargetID, &a.Details); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// prefixedPostColumns qualifies the shared post column list with a table
// alias for joins.
func prefixedPostColumns(alias string) string {
	return alias + `.id, ` + alias + `.board_id, ` + alias + `.parent, ` + alias + `.ip_hash, ` + alias + `.cookie_hash, ` +
		alias + `.name, ` + alias + `.tripcode, ` + alias + `.email, ` + alias + `.subject, ` + alias + `.message, ` +
		alias + `.file_original, ` + alias + `.file_path, ` + alias + `.file_hash, ` + alias + `.file_size, ` +
		alias + `.image_width, ` + alias + `.image_height, ` + alias + `.thumb_path, ` + alias + `.thumb_width, ` +
		alias + `.thumb_height, ` + alias + `.moderation, ` + alias + `.sticky, ` + alias + `.locked, ` +
		alias + `.deleted, ` + alias + `.created, ` + alias + `.bumped`
}
