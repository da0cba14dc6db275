// goban/regen/engine.go
package regen

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"goban/config"
	"goban/models"
)

// Source is where the engine reads board state from. One Snapshot call per
// rebuild gives every page of that rebuild a consistent view.
type Source interface {
	Snapshot(boardID string) (*models.BoardSnapshot, error)
}

// artifactState tracks a static page through its lifecycle. Only stale
// artifacts are re-rendered, so an untouched thread costs nothing.
type artifactState int

const (
	stateStale artifactState = iota
	stateRendering
	stateWritten
)

type boardState struct {
	threads      map[int64]artifactState
	indexesStale bool
	pageCount    int // index pages currently on disk
}

// Engine renders boards to static HTML under root: index.html and 1.html,
// 2.html... for the listing, res/<id>.html per thread. Writes go through a
// temp file and rename, so readers never observe a half-written page.
type Engine struct {
	src    Source
	root   string
	tmpl   *template.Template
	logger *slog.Logger

	mu     sync.Mutex
	boards map[string]*boardState
}

func NewEngine(src Source, root string, logger *slog.Logger) (*Engine, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return &Engine{
		src:    src,
		root:   root,
		tmpl:   tmpl,
		logger: logger,
		boards: make(map[string]*boardState),
	}, nil
}

func (e *Engine) boardState(boardID string) *boardState {
	bs, ok := e.boards[boardID]
	if !ok {
		bs = &boardState{threads: make(map[int64]artifactState)}
		e.boards[boardID] = bs
	}
	return bs
}

// MarkThread flags one thread page stale.
func (e *Engine) MarkThread(boardID string, threadID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.boardState(boardID).threads[threadID] = stateStale
}

// MarkIndexes flags every index page of a board stale. Listing order is
// global to the board, so any reorder invalidates all of them.
func (e *Engine) MarkIndexes(boardID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.boardState(boardID).indexesStale = true
}

// RebuildAll marks everything stale and rebuilds, for startup and manual
// full regenerations.
func (e *Engine) RebuildAll(boardID string) error {
	snap, err := e.src.Snapshot(boardID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	bs := e.boardState(boardID)
	for _, t := range snap.Threads {
		bs.threads[t.Op.ID] = stateStale
	}
	bs.indexesStale = true
	e.mu.Unlock()
	return e.rebuild(boardID, snap)
}

// Rebuild re-renders exactly the artifacts marked stale since the last
// rebuild. Re-rendering an unchanged board writes byte-identical pages.
func (e *Engine) Rebuild(boardID string) error {
	snap, err := e.src.Snapshot(boardID)
	if err != nil {
		return err
	}
	return e.rebuild(boardID, snap)
}

func (e *Engine) rebuild(boardID string, snap *models.BoardSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs := e.boardState(boardID)

	// Public threads only: a pending or hidden thread head retires its page.
	visible := make([]models.ThreadSnapshot, 0, len(snap.Threads))
	present := make(map[int64]models.ThreadSnapshot, len(snap.Threads))
	for _, t := range snap.Threads {
		if t.Op.Status == models.StatusApproved {
			visible = append(visible, t)
			present[t.Op.ID] = t
		}
	}

	for id, state := range bs.threads {
		if state != stateStale {
			continue
		}
		bs.threads[id] = stateRendering
		t, ok := present[id]
		if !ok {
			if err := e.removePage(boardID, fmt.Sprintf("res/%d.html", id)); err != nil {
				bs.threads[id] = stateStale
				return err
			}
			delete(bs.threads, id)
			continue
		}
		if err := e.renderThread(boardID, &snap.Board, t); err != nil {
			bs.threads[id] = stateStale
			return err
		}
		bs.threads[id] = stateWritten
	}

	if bs.indexesStale {
		pages, err := e.renderIndexes(boardID, &snap.Board, visible)
		if err != nil {
			return err
		}
		// Retire index pages past the new last page.
		for n := pages; n < bs.pageCount; n++ {
			if err := e.removePage(boardID, fmt.Sprintf("%d.html", n)); err != nil {
				return err
			}
		}
		bs.pageCount = pages
		bs.indexesStale = false
	}
	return nil
}

// threadView is one thread as a template sees it on an index page.
type threadView struct {
	Op         models.Post
	Replies    []models.Post
	Omitted    int
	ReplyCount int
}

type indexPage struct {
	Board     *models.BoardConfig
	Threads   []threadView
	PageNum   int
	PageCount int
	Version   string
}

// Pagination helpers for the board template.
func (p indexPage) PrevPage() int { return p.PageNum - 1 }
func (p indexPage) NextPage() int { return p.PageNum + 1 }
func (p indexPage) LastPage() int { return p.PageCount - 1 }
func (p indexPage) HasNext() bool { return p.PageNum+1 < p.PageCount }

type threadPage struct {
	Board   *models.BoardConfig
	Thread  threadView
	Version string
}

func (e *Engine) renderThread(boardID string, cfg *models.BoardConfig, t models.ThreadSnapshot) error {
	data := threadPage{
		Board: cfg,
		Thread: threadView{
			Op:         t.Op,
			Replies:    t.Replies,
			ReplyCount: len(t.Replies),
		},
		Version: config.AppVersion,
	}
	return e.writePage(boardID, fmt.Sprintf("res/%d.html", t.Op.ID), "thread.html", data)
}

func (e *Engine) renderIndexes(boardID string, cfg *models.BoardConfig, visible []models.ThreadSnapshot) (int, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	pages := (len(visible) + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}

	for n := 0; n < pages; n++ {
		lo := n * pageSize
		hi := lo + pageSize
		if hi > len(visible) {
			hi = len(visible)
		}
		views := make([]threadView, 0, hi-lo)
		for _, t := range visible[lo:hi] {
			views = append(views, previewThread(cfg, t))
		}
		name := "index.html"
		if n > 0 {
			name = fmt.Sprintf("%d.html", n)
		}
		data := indexPage{
			Board:     cfg,
			Threads:   views,
			PageNum:   n,
			PageCount: pages,
			Version:   config.AppVersion,
		}
		if err := e.writePage(boardID, name, "board.html", data); err != nil {
			return 0, err
		}
	}
	return pages, nil
}

// previewThread keeps only the newest preview replies, still in
// chronological order, and counts the rest as omitted.
func previewThread(cfg *models.BoardConfig, t models.ThreadSnapshot) threadView {
	k := cfg.PreviewReplies
	if k < 0 {
		k = 0
	}
	total := len(t.Replies)
	replies := t.Replies
	if total > k {
		replies = t.Replies[total-k:]
	}
	omitted := total - len(replies)
	return threadView{
		Op:         t.Op,
		Replies:    replies,
		Omitted:    omitted,
		ReplyCount: total,
	}
}

// writePage renders to a buffer, writes a temp file next to the target, and
// renames it into place.
func (e *Engine) writePage(boardID, name, tmplName string, data interface{}) error {
	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, tmplName, data); err != nil {
		return fmt.Errorf("failed to render %s/%s: %w", boardID, name, err)
	}

	target := filepath.Join(e.root, boardID, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return err
	}
	e.logger.Debug("Page written", "board", boardID, "page", name, "bytes", buf.Len())
	return nil
}

func (e *Engine) removePage(boardID, name string) error {
	err := os.Remove(filepath.Join(e.root, boardID, filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
