// goban/database/database.go
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goban/config"
	"goban/models"
	"goban/utils"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the central struct for all database operations.
type Store struct {
	DB         *sql.DB
	logger     *slog.Logger
	boardCache map[string]*models.BoardConfig
	cacheMu    sync.RWMutex
}

// InitStore connects to the database, runs migrations, and seeds default data.
func InitStore(dataSourceName string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Run the base schema to ensure all tables exist.
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	// Seed database if empty
	var boardCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM boards").Scan(&boardCount); err == nil && boardCount == 0 {
		_, err = db.Exec(`INSERT INTO boards (id, name, description, max_threads, max_replies, page_size, preview_replies, flood_window_secs, autohide_reports, created)
			VALUES ('b', 'Random', 'The anything-goes board.', ?, ?, ?, ?, ?, ?, ?)`,
			config.DefaultMaxThreads, config.DefaultMaxReplies, config.DefaultPageSize,
			config.DefaultPreviewReplies, config.DefaultFloodWindowSecs, config.DefaultAutoHideReports,
			utils.SQLNow())
		if err != nil {
			return nil, fmt.Errorf("failed to seed boards: %w", err)
		}
	}

	logger.Info("Database initialized")

	return &Store{
		DB:         db,
		logger:     logger,
		boardCache: make(map[string]*models.BoardConfig),
	}, nil
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	for _, m := range allMigrations {
		if m.Version > latestVersion {
			logger.Info("Applying migration", "version", m.Version)
			tx, err := db.Begin()
			if err != nil {
				return err
			}

			if _, err := tx.Exec(m.Query); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.SQLNow()); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
			}
		}
	}
	return nil
}

// GetBoard fetches board configuration, using the instance's cache.
func (st *Store) GetBoard(boardID string) (*models.BoardConfig, error) {
	st.cacheMu.RLock()
	cached, ok := st.boardCache[boardID]
	st.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	var board models.BoardConfig
	var floodSecs int
	err := st.DB.QueryRow(`SELECT id, name, description, max_threads, max_replies, page_size, preview_replies, flood_window_secs, autohide_reports, created
		FROM boards WHERE id = ?`, boardID).Scan(
		&board.ID, &board.Name, &board.Description, &board.MaxThreads, &board.MaxReplies,
		&board.PageSize, &board.PreviewReplies, &floodSecs, &board.AutoHideReports, &board.Created,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("board '%s' not found", boardID)
		}
		return nil, fmt.Errorf("db error getting board '%s': %w", boardID, err)
	}
	board.FloodWindow = time.Duration(floodSecs) * time.Second

	st.cacheMu.Lock()
	st.boardCache[boardID] = &board
	st.cacheMu.Unlock()
	return &board, nil
}

// ListBoardIDs returns the ids of all boards.
func (st *Store) ListBoardIDs() ([]string, error) {
	rows, err := st.DB.Query("SELECT id FROM boards ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			st.logger.Error("Failed to close rows in ListBoardIDs", "error", err)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearBoardCache invalidates the cached config for a board.
func (st *Store) ClearBoardCache(boardID string) {
	st.cacheMu.Lock()
	delete(st.boardCache, boardID)
	st.cacheMu.Unlock()
}
