// goban/models/models.go
package models

import (
	"database/sql"
	"time"
)

// --- Core Data Models ---

// ModerationStatus is the visibility state of a post.
type ModerationStatus int

const (
	StatusPending ModerationStatus = iota
	StatusApproved
	StatusHidden
)

func (s ModerationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusHidden:
		return "hidden"
	}
	return "unknown"
}

// Attachment describes a stored upload. A zero value means no attachment.
type Attachment struct {
	OriginalName string
	Path         string
	Hash         string
	Size         int64
	Width        int
	Height       int
	ThumbPath    string
	ThumbWidth   int
	ThumbHeight  int
}

// Post is a thread (Parent == 0) or a reply (Parent == thread id).
type Post struct {
	ID         int64
	BoardID    string
	Parent     int64
	IPHash     string
	CookieHash string
	Name       string
	Tripcode   string
	Email      string
	Subject    string
	Message    string
	File       Attachment
	Status     ModerationStatus
	Sticky     bool
	Locked     bool
	Deleted    bool
	Created    time.Time
	Bumped     time.Time // threads only; drives index ordering
}

// IsThread reports whether the post is a thread head.
func (p Post) IsThread() bool { return p.Parent == 0 }

// HasFile reports whether the post carries an attachment.
func (p Post) HasFile() bool { return p.File.Path != "" }

// BoardConfig holds per-board tunables for the pipeline.
type BoardConfig struct {
	ID              string
	Name            string
	Description     string
	MaxThreads      int // 0 = unlimited
	MaxReplies      int // bump limit; 0 = unlimited
	PageSize        int
	PreviewReplies  int
	FloodWindow     time.Duration
	AutoHideReports int // reports needed to flip a post to pending; 0 disables
	Created         time.Time
}

// Ban blocks an IP hash from posting. A null ExpiresAt is permanent.
type Ban struct {
	ID        int64
	IPHash    string
	Reason    string
	Created   time.Time
	ExpiresAt sql.NullTime
}

// Permanent reports whether the ban never expires.
func (b *Ban) Permanent() bool { return !b.ExpiresAt.Valid }

// KeywordAction is the closed set of auto-moderation outcomes.
type KeywordAction int

const (
	ActionReport KeywordAction = iota
	ActionHide
	ActionDelete
	ActionBan
)

func (a KeywordAction) String() string {
	switch a {
	case ActionReport:
		return "report"
	case ActionHide:
		return "hide"
	case ActionDelete:
		return "delete"
	case ActionBan:
		return "ban"
	}
	return "unknown"
}

// KeywordRule is matched against incoming posts' text fields in id order.
type KeywordRule struct {
	ID          int64
	Pattern     string
	IsRegexp    bool
	Action      KeywordAction
	BanDuration time.Duration // ActionBan only; 0 = permanent
	Created     time.Time
}

// Report flags a post for moderator review.
type Report struct {
	ID       int64
	PostID   int64
	IPHash   string
	Reason   string
	Created  time.Time
	Resolved bool
	Post     Post
}

// ModAction is one row of the moderation audit log.
type ModAction struct {
	ID        int64
	Timestamp time.Time
	Moderator string
	Action    string
	TargetID  sql.NullInt64
	Details   sql.NullString
}

// AuthInfo is the request-scoped identity supplied by the auth collaborator.
type AuthInfo struct {
	IsModerator bool
	IsAdmin     bool
	AccountID   string
}

// Upload is what the upload transport hands to admission control. The real
// media type is sniffed from content, never trusted from DeclaredMIME alone.
type Upload struct {
	TempPath     string
	DeclaredName string
	DeclaredMIME string
	Size         int64
}

// --- Regeneration snapshot views ---

// ThreadSnapshot is one thread with its publicly visible replies in
// chronological order.
type ThreadSnapshot struct {
	Op      Post
	Replies []Post
}

// BoardSnapshot is a consistent read of everything the regeneration engine
// needs to render a board: config plus threads in listing order (sticky
// first by id, then by bump descending).
type BoardSnapshot struct {
	Board   BoardConfig
	Threads []ThreadSnapshot
}
