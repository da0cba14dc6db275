package database

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT,
	max_threads INTEGER DEFAULT 100, max_replies INTEGER DEFAULT 500,
	page_size INTEGER DEFAULT 10, preview_replies INTEGER DEFAULT 3,
	flood_window_secs INTEGER DEFAULT 30,
	autohide_reports INTEGER DEFAULT 3,
	created DATETIME
);
-- Unified post table: parent = 0 means thread head. Threads carry the
-- subject, sticky/locked flags and the bump timestamp.
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	board_id TEXT NOT NULL,
	parent INTEGER NOT NULL DEFAULT 0,
	ip_hash TEXT,
	name TEXT, tripcode TEXT, email TEXT, subject TEXT, message TEXT,
	file_original TEXT, file_path TEXT, file_hash TEXT,
	file_size INTEGER DEFAULT 0,
	image_width INTEGER DEFAULT 0, image_height INTEGER DEFAULT 0,
	thumb_path TEXT, thumb_width INTEGER DEFAULT 0, thumb_height INTEGER DEFAULT 0,
	moderation INTEGER NOT NULL DEFAULT 1, -- 0 pending, 1 approved, 2 hidden
	sticky BOOLEAN DEFAULT 0, locked BOOLEAN DEFAULT 0, deleted BOOLEAN DEFAULT 0,
	created DATETIME, bumped DATETIME,
	FOREIGN KEY (board_id) REFERENCES boards(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS bans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip_hash TEXT NOT NULL,
	reason TEXT,
	created_at DATETIME,
	expires_at DATETIME -- NULL = permanent
);
CREATE TABLE IF NOT EXISTS keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern TEXT NOT NULL,
	is_regexp BOOLEAN DEFAULT 0,
	action INTEGER NOT NULL DEFAULT 0, -- 0 report, 1 hide, 2 delete, 3 ban
	ban_seconds INTEGER DEFAULT 0,     -- action = ban only; 0 = permanent
	created DATETIME
);
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT, post_id INTEGER, reason TEXT,
	ip_hash TEXT, created_at DATETIME, resolved BOOLEAN DEFAULT 0
);
CREATE TABLE IF NOT EXISTS mod_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    moderator TEXT NOT NULL,
    action TEXT NOT NULL,
    target_id INTEGER,
    details TEXT
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_posts_board_parent ON posts(board_id, parent, deleted);
CREATE INDEX IF NOT EXISTS idx_posts_listing ON posts(board_id, parent, deleted, sticky DESC, bumped DESC);
CREATE INDEX IF NOT EXISTS idx_posts_ip_hash ON posts(board_id, ip_hash, deleted);
CREATE INDEX IF NOT EXISTS idx_posts_file_hash ON posts(board_id, file_hash, deleted);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bans_ip_hash ON bans(ip_hash);
CREATE INDEX IF NOT EXISTS idx_reports_post_id ON reports(post_id);
CREATE INDEX IF NOT EXISTS idx_mod_actions_time ON mod_actions(timestamp DESC);
`
