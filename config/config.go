// goban/config/config.go
package config

const (
	AppVersion = "0.4"

	// Form & Post Limits
	MaxNameLen    = 75
	MaxEmailLen   = 75
	MaxSubjectLen = 100
	MaxMessageLen = 8000

	// File Upload Limits
	MaxFileSize     = 8 * 1024 * 1024 // 8MB
	MaxWidth        = 8000
	MaxHeight       = 8000
	ThumbnailWidth  = 250
	ThumbnailHeight = 250

	// Per-board defaults, used when seeding the boards table.
	DefaultPageSize        = 10
	DefaultPreviewReplies  = 3
	DefaultMaxThreads      = 100
	DefaultMaxReplies      = 500
	DefaultFloodWindowSecs = 30
	DefaultAutoHideReports = 3

	// Rate Limiting Defaults (request-level limiter, not the flood gate)
	DefaultRateLimitEvery  = "10s"
	DefaultRateLimitBurst  = 5
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"
)

// AllowedMIMETypes is the attachment allow-list. Both the declared and the
// sniffed content type must appear here.
var AllowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}
