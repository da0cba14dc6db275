// goban/regen/engine_test.go
package regen

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"goban/database"
	"goban/models"
)

func setupTestEngine(t *testing.T) (*Engine, *database.Store, string) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := t.TempDir()
	store, err := database.InitStore(filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on"), logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() {
		if err := store.DB.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	root := filepath.Join(dir, "static")
	engine, err := NewEngine(store, root, logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine, store, root
}

func insertPost(t *testing.T, store *database.Store, parent int64, msg string, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{
		BoardID: "b",
		Parent:  parent,
		IPHash:  "hash",
		Name:    "Anonymous",
		Message: msg,
		Status:  models.StatusApproved,
		Created: at,
		Bumped:  at,
	}
	if _, err := store.InsertPost(p); err != nil {
		t.Fatalf("InsertPost failed: %v", err)
	}
	return p
}

func readPage(t *testing.T, root, board, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, board, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("Failed to read page %s/%s: %v", board, name, err)
	}
	return string(data)
}

func pageExists(root, board, name string) bool {
	_, err := os.Stat(filepath.Join(root, board, filepath.FromSlash(name)))
	return err == nil
}

func TestRebuildAllWritesIndexAndThreadPages(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	th := insertPost(t, store, 0, "hello board", now)
	insertPost(t, store, th.ID, "a reply", now.Add(time.Second))

	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}

	index := readPage(t, root, "b", "index.html")
	if !strings.Contains(index, "hello board") || !strings.Contains(index, "a reply") {
		t.Errorf("index page missing content:\n%s", index)
	}
	thread := readPage(t, root, "b", fmt.Sprintf("res/%d.html", th.ID))
	if !strings.Contains(thread, "hello board") || !strings.Contains(thread, "a reply") {
		t.Errorf("thread page missing content:\n%s", thread)
	}
	// No leftover temp files.
	if pageExists(root, "b", "index.html.tmp") {
		t.Error("temp file left behind")
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)
	th := insertPost(t, store, 0, "stable content", now)

	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}
	first := readPage(t, root, "b", "index.html")
	firstThread := readPage(t, root, "b", fmt.Sprintf("res/%d.html", th.ID))

	// Rebuilding with nothing changed produces byte-identical pages.
	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("second RebuildAll failed: %v", err)
	}
	if got := readPage(t, root, "b", "index.html"); got != first {
		t.Error("index page differs between identical rebuilds")
	}
	if got := readPage(t, root, "b", fmt.Sprintf("res/%d.html", th.ID)); got != firstThread {
		t.Error("thread page differs between identical rebuilds")
	}
}

func TestIndexOmitsOldRepliesWithCount(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Seeded preview_replies is 3; write 5 replies.
	th := insertPost(t, store, 0, "busy thread", now)
	for i := 1; i <= 5; i++ {
		insertPost(t, store, th.ID, fmt.Sprintf("reply number %d", i), now.Add(time.Duration(i)*time.Second))
	}

	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}
	index := readPage(t, root, "b", "index.html")

	if !strings.Contains(index, "2 replies omitted") {
		t.Errorf("omitted count missing from index:\n%s", index)
	}
	// Newest three shown, oldest two omitted.
	for _, want := range []string{"reply number 3", "reply number 4", "reply number 5"} {
		if !strings.Contains(index, want) {
			t.Errorf("index missing preview reply %q", want)
		}
	}
	for _, missing := range []string{"reply number 1", "reply number 2"} {
		if strings.Contains(index, missing) {
			t.Errorf("index shows omitted reply %q", missing)
		}
	}
	// The thread page still has everything.
	thread := readPage(t, root, "b", fmt.Sprintf("res/%d.html", th.ID))
	for i := 1; i <= 5; i++ {
		if !strings.Contains(thread, fmt.Sprintf("reply number %d", i)) {
			t.Errorf("thread page missing reply %d", i)
		}
	}
}

func TestPagination(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Seeded page size is 10; 12 threads make two pages.
	for i := 0; i < 12; i++ {
		insertPost(t, store, 0, fmt.Sprintf("thread %d", i), now.Add(time.Duration(i)*time.Minute))
	}
	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}

	if !pageExists(root, "b", "index.html") || !pageExists(root, "b", "1.html") {
		t.Fatal("expected index.html and 1.html")
	}
	if pageExists(root, "b", "2.html") {
		t.Error("unexpected third index page")
	}
	// Newest threads on the first page, overflow on the second.
	index := readPage(t, root, "b", "index.html")
	second := readPage(t, root, "b", "1.html")
	if !strings.Contains(index, "thread 11") || strings.Contains(index, "thread 0") {
		t.Error("first page has wrong threads")
	}
	if !strings.Contains(second, "thread 0") {
		t.Error("second page missing oldest thread")
	}
}

func TestStalePageCleanup(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	// 12 threads, then shrink to fit one page.
	var ids []int64
	for i := 0; i < 12; i++ {
		p := insertPost(t, store, 0, fmt.Sprintf("thread %d", i), now.Add(time.Duration(i)*time.Minute))
		ids = append(ids, p.ID)
	}
	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}
	if !pageExists(root, "b", "1.html") {
		t.Fatal("expected two index pages before cleanup")
	}

	for _, id := range ids[:5] {
		if _, _, _, err := store.SoftDeletePost(id); err != nil {
			t.Fatalf("SoftDeletePost failed: %v", err)
		}
		engine.MarkThread("b", id)
	}
	engine.MarkIndexes("b")
	if err := engine.Rebuild("b"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	// The second index page and the deleted threads' pages are retired.
	if pageExists(root, "b", "1.html") {
		t.Error("stale index page 1.html not removed")
	}
	for _, id := range ids[:5] {
		if pageExists(root, "b", fmt.Sprintf("res/%d.html", id)) {
			t.Errorf("page for deleted thread %d not removed", id)
		}
	}
}

func TestHiddenThreadPageRetired(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	th := insertPost(t, store, 0, "soon hidden", now)
	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}
	if !pageExists(root, "b", fmt.Sprintf("res/%d.html", th.ID)) {
		t.Fatal("thread page not written")
	}

	if err := store.SetModeration(th.ID, models.StatusHidden); err != nil {
		t.Fatalf("SetModeration failed: %v", err)
	}
	engine.MarkThread("b", th.ID)
	engine.MarkIndexes("b")
	if err := engine.Rebuild("b"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if pageExists(root, "b", fmt.Sprintf("res/%d.html", th.ID)) {
		t.Error("hidden thread page still on disk")
	}
	if strings.Contains(readPage(t, root, "b", "index.html"), "soon hidden") {
		t.Error("hidden thread still listed on index")
	}
}

func TestRebuildSkipsUnmarkedThreads(t *testing.T) {
	engine, store, root := setupTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)

	a := insertPost(t, store, 0, "thread a", now)
	b := insertPost(t, store, 0, "thread b", now.Add(time.Minute))
	if err := engine.RebuildAll("b"); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}

	// Remove thread a's page out from under the engine. An unmarked thread
	// is not re-rendered, so the page stays gone until marked.
	pageA := filepath.Join(root, "b", fmt.Sprintf("res/%d.html", a.ID))
	if err := os.Remove(pageA); err != nil {
		t.Fatalf("Failed to remove page: %v", err)
	}

	engine.MarkThread("b", b.ID)
	if err := engine.Rebuild("b"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if pageExists(root, "b", fmt.Sprintf("res/%d.html", a.ID)) {
		t.Error("unmarked thread was re-rendered")
	}

	engine.MarkThread("b", a.ID)
	if err := engine.Rebuild("b"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if !pageExists(root, "b", fmt.Sprintf("res/%d.html", a.ID)) {
		t.Error("marked thread was not re-rendered")
	}
}
