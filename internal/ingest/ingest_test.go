package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []jobs.SubmitRequest
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req jobs.SubmitRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return uuid.New(), nil
}

func (f *fakeSubmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reqs))
	for i, r := range f.reqs {
		out[i] = r.Filename
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFSIngestor_IngestPath(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	cfg := entity.JobConfig{OCRBackend: constants.OCRTesseract, Language: "fr"}
	ing := NewFSIngestor(sub, cfg, nil)

	a := filepath.Join(dir, "Report.PDF")
	writeFile(t, a, "%PDF-1.7 first")

	r, err := ing.IngestPath(context.Background(), a)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r.JobID)
	assert.False(t, r.Deduplicated)
	assert.Equal(t, "pdf", r.FileExt)
	assert.Len(t, r.HashHex, 64)
	require.Len(t, sub.reqs, 1)
	assert.Equal(t, "Report.PDF", sub.reqs[0].Filename)
	assert.Equal(t, "fr", sub.reqs[0].Config.Language)

	// same bytes under another name
	b := filepath.Join(dir, "copy.pdf")
	writeFile(t, b, "%PDF-1.7 first")
	r2, err := ing.IngestPath(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, r2.Deduplicated)
	assert.Equal(t, r.JobID, r2.JobID)
	assert.Len(t, sub.reqs, 1)

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFSIngestor_SubmitFailureIsNotRemembered(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{err: errors.New("queue closed")}
	ing := NewFSIngestor(sub, entity.JobConfig{}, nil)
	p := filepath.Join(dir, "a.png")
	writeFile(t, p, "\x89PNG\r\n\x1a\n")

	_, err := ing.IngestPath(context.Background(), p)
	require.Error(t, err)

	sub.err = nil
	r, err := ing.IngestPath(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
}

func TestFSIngestor_IngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "nested", "b.tif"), "b")
	writeFile(t, filepath.Join(root, "nested", "b-copy.tif"), "b")
	writeFile(t, filepath.Join(root, "readme.md"), "skip")
	writeFile(t, filepath.Join(root, ".cache", "c.pdf"), "c")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "h")

	sub := &fakeSubmitter{}
	ing := NewFSIngestor(sub, entity.JobConfig{}, nil)

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Zero(t, stats.Failed)
	assert.Len(t, results, 3)
	assert.ElementsMatch(t, []string{"a.pdf", "b-copy.tif"}, sub.names())

	all := NewFSIngestor(&fakeSubmitter{}, entity.JobConfig{}, nil)
	_, stats, err = all.IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stats.Matched)

	_, _, err = ing.IngestDirectory(context.Background(), "  ", true)
	assert.Error(t, err)
}

func TestFSIngestor_IngestDirectoryCustomExts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "b.jpg"), "b")

	sub := &fakeSubmitter{}
	ing := NewFSIngestor(sub, entity.JobConfig{}, nil)
	ing.AllowedExts = map[string]struct{}{"jpg": {}}

	_, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stats.Matched)
	assert.Equal(t, []string{"b.jpg"}, sub.names())
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}

func TestFSIngestor_Watch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "existing")

	sub := &fakeSubmitter{}
	ing := NewFSIngestor(sub, entity.JobConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- ing.Watch(ctx, WatchConfig{
			Roots:       []string{root},
			InitialScan: true,
			SkipHidden:  true,
			Debounce:    20 * time.Millisecond,
		}, nil)
	}()

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"existing.pdf"}, sub.names())
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(root, "new.png"), "new image")
	writeFile(t, filepath.Join(root, "ignored.txt"), "text")

	require.Eventually(t, func() bool {
		return len(sub.names()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "new.png", sub.names()[1])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
