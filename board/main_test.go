// goban/board/main_test.go
package board

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goban/database"
	"goban/models"
	"goban/utils"
)

// pageRecorder stands in for the regeneration engine so pipeline tests can
// assert on what got marked stale without rendering anything.
type pageRecorder struct {
	mu          sync.Mutex
	threadMarks map[int64]int
	indexMarks  int
	rebuilds    int
}

func newPageRecorder() *pageRecorder {
	return &pageRecorder{threadMarks: make(map[int64]int)}
}

func (r *pageRecorder) MarkThread(boardID string, threadID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threadMarks[threadID]++
}

func (r *pageRecorder) MarkIndexes(boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexMarks++
}

func (r *pageRecorder) Rebuild(boardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuilds++
	return nil
}

func (r *pageRecorder) RebuildAll(boardID string) error {
	return r.Rebuild(boardID)
}

// testClock gives tests control over the pipeline's idea of time.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// setupTestService wires a Service over a fresh database, a local file
// store in a temp dir, and a page recorder.
func setupTestService(t *testing.T) (*Service, *database.Store, *pageRecorder, *testClock) {
	t.Helper()
	utils.IPSalt = "test-salt"
	t.Cleanup(func() { utils.IPSalt = "" })

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

	rec := newPageRecorder()
	svc := NewService(store, &utils.LocalStore{Root: dir}, rec, logger)
	clock := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	svc.now = clock.Now
	return svc, store, rec, clock
}

// setBoardConfig tweaks the seeded board's tunables directly.
func setBoardConfig(t *testing.T, store *database.Store, column string, value interface{}) {
	t.Helper()
	if _, err := store.DB.Exec("UPDATE boards SET "+column+" = ? WHERE id = 'b'", value); err != nil {
		t.Fatalf("Failed to update board config %s: %v", column, err)
	}
	store.ClearBoardCache("b")
}

// makeTestUpload writes a small random PNG to a temp file and describes it
// as an Upload. Random pixels keep content hashes unique across calls.
func makeTestUpload(t *testing.T) *models.Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(rand.Intn(256)), uint8(rand.Intn(256)), uint8(rand.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test PNG: %v", err)
	}

	tmp := filepath.Join(t.TempDir(), "upload.png")
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test upload: %v", err)
	}
	return &models.Upload{
		TempPath:     tmp,
		DeclaredName: "test.png",
		DeclaredMIME: "image/png",
		Size:         int64(buf.Len()),
	}
}

func submitThread(t *testing.T, svc *Service, ip, msg string) *models.Post {
	t.Helper()
	post, err := svc.Submit(&SubmitRequest{BoardID: "b", IP: ip, Message: msg})
	if err != nil {
		t.Fatalf("Submit thread failed: %v", err)
	}
	return post
}

func submitReply(t *testing.T, svc *Service, ip string, parent int64, msg, email string) *models.Post {
	t.Helper()
	post, err := svc.Submit(&SubmitRequest{BoardID: "b", IP: ip, Parent: parent, Message: msg, Email: email})
	if err != nil {
		t.Fatalf("Submit reply failed: %v", err)
	}
	return post
}
