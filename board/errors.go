// goban/board/errors.go
package board

import (
	"errors"
	"fmt"
	"time"
)

// Infrastructure failures, distinguishable from content rejections.
var (
	ErrStorage      = errors.New("storage failure")
	ErrRender       = errors.New("page regeneration failure")
	ErrUnauthorized = errors.New("insufficient privileges")
	ErrNotFound     = errors.New("not found")
)

// RejectKind classifies why admission control turned a submission away.
type RejectKind int

const (
	RejectBan RejectKind = iota
	RejectFlood
	RejectSize
	RejectUpload
	RejectDuplicate
	RejectKeyword
	RejectParent
)

func (k RejectKind) String() string {
	switch k {
	case RejectBan:
		return "ban"
	case RejectFlood:
		return "flood"
	case RejectSize:
		return "size"
	case RejectUpload:
		return "upload"
	case RejectDuplicate:
		return "duplicate"
	case RejectKeyword:
		return "keyword"
	case RejectParent:
		return "parent"
	}
	return "unknown"
}

// Rejection is a content rejection: the submission was refused by policy,
// not by infrastructure. Callers pick it out with errors.As.
type Rejection struct {
	Kind      RejectKind
	Message   string
	Wait      time.Duration // RejectFlood: time until the next post is allowed
	Duplicate int64         // RejectDuplicate: the post already carrying the file
}

func (r *Rejection) Error() string { return r.Message }

func reject(kind RejectKind, format string, args ...interface{}) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapStorage(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
