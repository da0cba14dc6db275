// goban/database/snapshot.go
package database

import (
	"fmt"
	"strings"

	"goban/models"
)

// Snapshot takes a consistent read of a board for the regeneration engine:
// config, thread heads in listing order, and each thread's approved replies
// in chronological order. Thread heads of every moderation status are
// included so the renderer can retire pages for hidden threads.
func (st *Store) Snapshot(boardID string) (*models.BoardSnapshot, error) {
	board, err := st.GetBoard(boardID)
	if err != nil {
		return nil, err
	}

	threads, err := st.ListThreads(boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads for snapshot: %w", err)
	}

	snap := &models.BoardSnapshot{Board: *board}
	if len(threads) == 0 {
		return snap, nil
	}

	// One batched query for all replies instead of one per thread.
	ids := make([]interface{}, len(threads))
	placeholders := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(`SELECT `+postColumns+` FROM posts
		WHERE parent IN (%s) AND deleted = 0 AND moderation = %d
		ORDER BY id ASC`, strings.Join(placeholders, ","), int(models.StatusApproved))

	rows, err := st.DB.Query(query, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies for snapshot: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in Snapshot", "error", err)
		}
	}()

	repliesByThread := make(map[int64][]models.Post, len(threads))
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		repliesByThread[p.Parent] = append(repliesByThread[p.Parent], *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap.Threads = make([]models.ThreadSnapshot, 0, len(threads))
	for _, t := range threads {
		snap.Threads = append(snap.Threads, models.ThreadSnapshot{
			Op:      t,
			Replies: repliesByThread[t.ID],
		})
	}
	return snap, nil
}
