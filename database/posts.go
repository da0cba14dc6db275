// goban/database/posts.go
package database

import (
	"database/sql"
	"fmt"
	"time"

	"goban/models"
)

const postColumns = `id, board_id, parent, ip_hash, cookie_hash, name, tripcode, email, subject, message,
	file_original, file_path, file_hash, file_size, image_width, image_height,
	thumb_path, thumb_width, thumb_height, moderation, sticky, locked, deleted, created, bumped`

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(s scanner) (*models.Post, error) {
	var p models.Post
	var ipHash, cookieHash, name, trip, email, subject, message sql.NullString
	var fileOrig, filePath, fileHash, thumbPath sql.NullString
	var status int
	var created, bumped sql.NullTime
	err := s.Scan(&p.ID, &p.BoardID, &p.Parent, &ipHash, &cookieHash, &name, &trip, &email, &subject, &message,
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
	return &p, nil
}

// InsertPost stores a new post atomically and fills in its assigned id.
func (st *Store) InsertPost(p *models.Post) (int64, error) {
	res, err := st.DB.Exec(`INSERT INTO posts
		(board_id, parent, ip_hash, cookie_hash, name, tripcode, email, subject, message,
		 file_original, file_path, file_hash, file_size, image_width, image_height,
		 thumb_path, thumb_width, thumb_height, moderation, sticky, locked, deleted, created, bumped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.BoardID, p.Parent, p.IPHash, p.CookieHash, p.Name, p.Tripcode, p.Email, p.Subject, p.Message,
		p.File.OriginalName, p.File.Path, p.File.Hash, p.File.Size, p.File.Width, p.File.Height,
		p.File.ThumbPath, p.File.ThumbWidth, p.File.ThumbHeight, int(p.Status), p.Sticky, p.Locked,
		p.Created, p.Bumped)
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// GetPost fetches a single non-deleted post by id. Returns sql.ErrNoRows
// when the post is missing or deleted.
func (st *Store) GetPost(postID int64) (*models.Post, error) {
	row := st.DB.QueryRow("SELECT "+postColumns+" FROM posts WHERE id = ? AND deleted = 0", postID)
	return scanPost(row)
}

// ListThreads returns all non-deleted thread heads of a board in listing
// order: sticky threads first (by id), then by bump descending.
func (st *Store) ListThreads(boardID string) ([]models.Post, error) {
	rows, err := st.DB.Query(`SELECT `+postColumns+` FROM posts
		WHERE board_id = ? AND parent = 0 AND deleted = 0
		ORDER BY sticky DESC, CASE WHEN sticky = 1 THEN id ELSE 0 END ASC, bumped DESC, id DESC`, boardID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListThreads", "error", err)
		}
	}()

	var threads []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *p)
	}
	return threads, rows.Err()
}

// ListReplies returns a thread's non-deleted replies in chronological order.
// When visibleOnly is set, pending and hidden replies are excluded.
func (st *Store) ListReplies(threadID int64, visibleOnly bool) ([]models.Post, error) {
	query := "SELECT " + postColumns + " FROM posts WHERE parent = ? AND deleted = 0"
	if visibleOnly {
		query += fmt.Sprintf(" AND moderation = %d", int(models.StatusApproved))
	}
	query += " ORDER BY id ASC"
	rows, err := st.DB.Query(query, threadID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListReplies", "error", err)
		}
	}()

	var replies []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, *p)
	}
	return replies, rows.Err()
}

// CountReplies counts a thread's non-deleted replies. Hidden and pending
// replies count: they occupy slots toward the bump limit.
func (st *Store) CountReplies(threadID int64) (int, error) {
	var count int
	err := st.DB.QueryRow("SELECT COUNT(*) FROM posts WHERE parent = ? AND deleted = 0", threadID).Scan(&count)
	return count, err
}

// CountThreads counts a board's non-deleted threads. When excludeSticky is
// set only trim-eligible threads are counted.
func (st *Store) CountThreads(boardID string, excludeSticky bool) (int, error) {
	query := "SELECT COUNT(*) FROM posts WHERE board_id = ? AND parent = 0 AND deleted = 0"
	if excludeSticky {
		query += " AND sticky = 0"
	}
	var count int
	err := st.DB.QueryRow(query, boardID).Scan(&count)
	return count, err
}

// OldestThreads returns the ids of the n least recently bumped non-sticky
// threads on a board.
func (st *Store) OldestThreads(boardID string, n int) ([]int64, error) {
	rows, err := st.DB.Query(`SELECT id FROM posts
		WHERE board_id = ? AND parent = 0 AND deleted = 0 AND sticky = 0
		ORDER BY bumped ASC, id ASC LIMIT ?`, boardID, n)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in OldestThreads", "error", err)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BumpThread advances a thread's bump timestamp. The timestamp is monotonic
// non-decreasing: an older time never rewinds it.
func (st *Store) BumpThread(threadID int64, at time.Time) error {
	_, err := st.DB.Exec("UPDATE posts SET bumped = ? WHERE id = ? AND parent = 0 AND bumped < ?", at, threadID, at)
	return err
}

// SetModeration updates a post's moderation status.
func (st *Store) SetModeration(postID int64, status models.ModerationStatus) error {
	res, err := st.DB.Exec("UPDATE posts SET moderation = ? WHERE id = ? AND deleted = 0", int(status), postID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetSticky pins or unpins a thread.
func (st *Store) SetSticky(threadID int64, on bool) error {
	res, err := st.DB.Exec("UPDATE posts SET sticky = ? WHERE id = ? AND parent = 0 AND deleted = 0", on, threadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetLocked locks or unlocks a thread. Locked threads reject new replies
// but remain visible.
func (st *Store) SetLocked(threadID int64, on bool) error {
	res, err := st.DB.Exec("UPDATE posts SET locked = ? WHERE id = ? AND parent = 0 AND deleted = 0", on, threadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDeletePost marks a post deleted. Deleting a thread head cascades to
// every reply in the same transaction, so a concurrent reader never sees a
// half-deleted thread. Returns the board, whether a whole thread went away,
// and the attachment/thumbnail paths whose content hash is no longer
// referenced by any live post (the caller removes those files).
func (st *Store) SoftDeletePost(postID int64) (boardID string, isThread bool, orphans []string, err error) {
	tx, err := st.DB.Begin()
	if err != nil {
		return "", false, nil, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			st.logger.Error("Failed to rollback transaction in SoftDeletePost", "error", rerr)
		}
	}()

	var parent int64
	err = tx.QueryRow("SELECT board_id, parent FROM posts WHERE id = ? AND deleted = 0", postID).Scan(&boardID, &parent)
	if err != nil {
		return "", false, nil, fmt.Errorf("post not found: %w", err)
	}
	isThread = parent == 0

	type storedFile struct{ path, thumb, hash string }
	var files []storedFile

	collect := func(query string, args ...interface{}) error {
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p, t, h sql.NullString
			if err := rows.Scan(&p, &t, &h); err != nil {
				return err
			}
			if p.Valid && p.String != "" {
				files = append(files, storedFile{p.String, t.String, h.String})
			}
		}
		return rows.Err()
	}

	if isThread {
		if err := collect(`SELECT file_path, thumb_path, file_hash FROM posts
			WHERE (id = ? OR parent = ?) AND deleted = 0 AND file_path != ''`, postID, postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to query thread attachments: %w", err)
		}
		if _, err := tx.Exec("UPDATE posts SET deleted = 1 WHERE id = ? OR parent = ?", postID, postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to delete thread: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM reports WHERE post_id IN (SELECT id FROM posts WHERE id = ? OR parent = ?)", postID, postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to delete associated reports: %w", err)
		}
	} else {
		if err := collect(`SELECT file_path, thumb_path, file_hash FROM posts
			WHERE id = ? AND file_path != ''`, postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to query post attachment: %w", err)
		}
		if _, err := tx.Exec("UPDATE posts SET deleted = 1 WHERE id = ?", postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to delete post: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM reports WHERE post_id = ?", postID); err != nil {
			return "", false, nil, fmt.Errorf("failed to delete associated reports: %w", err)
		}
	}

	for _, f := range files {
		var live int
		if err := tx.QueryRow("SELECT COUNT(*) FROM posts WHERE file_hash = ? AND deleted = 0", f.hash).Scan(&live); err != nil {
			st.logger.Warn("Failed to check attachment references", "hash", f.hash, "error", err)
			continue
		}
		if live == 0 {
			orphans = append(orphans, f.path)
			if f.thumb != "" {
				orphans = append(orphans, f.thumb)
			}
		}
	}

	return boardID, isThread, orphans, tx.Commit()
}

// LastPostTime returns the creation time of the most recent non-deleted
// post by an IP hash on a board, used by the flood gate.
func (st *Store) LastPostTime(boardID, ipHash string) (time.Time, bool, error) {
	var created time.Time
	err := st.DB.QueryRow(`SELECT created FROM posts
		WHERE board_id = ? AND ip_hash = ? AND deleted = 0
		ORDER BY id DESC LIMIT 1`, boardID, ipHash).Scan(&created)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return created, true, nil
}

// FindAttachment looks up a non-deleted post on the board with the given
// attachment content hash. Used for duplicate detection.
func (st *Store) FindAttachment(boardID, hash string) (int64, bool, error) {
	var id int64
	err := st.DB.QueryRow(`SELECT id FROM posts
		WHERE board_id = ? AND file_hash = ? AND deleted = 0
		ORDER BY id ASC LIMIT 1`, boardID, hash).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
