// goban/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Add a persistent cookie hash so users can delete their own posts
ALTER TABLE posts ADD COLUMN cookie_hash TEXT;
CREATE INDEX IF NOT EXISTS idx_posts_cookie_hash ON posts(cookie_hash);
		`,
	},
}
