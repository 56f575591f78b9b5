package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
)

// FSIngestor reads documents from the local filesystem and submits them.
// Files whose content was already submitted by this ingestor are not
// submitted again.
type FSIngestor struct {
	Jobs        Submitter
	Config      entity.JobConfig    // applied to every submission
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> default set

	logger *slog.Logger
	mu     sync.Mutex
	seen   map[string]uuid.UUID // content hash -> job id
}

func NewFSIngestor(sub Submitter, cfg entity.JobConfig, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		Jobs:   sub,
		Config: cfg,
		logger: logger,
		seen:   make(map[string]uuid.UUID),
	}
}

func (i *FSIngestor) allowed(ext string) bool {
	if i.AllowedExts == nil {
		return AllowedExt(ext)
	}
	_, ok := i.AllowedExts[constants.NormalizeExt(ext)]
	return ok
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("ingest.abs_path_failed", "path", path, "error", err)
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !i.allowed(ext) {
		i.logger.Warn("ingest.unsupported_extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		i.logger.Error("ingest.read_failed", "path", abs, "error", err)
		return out, err
	}
	sum := sha256.Sum256(content)
	hashHex := hex.EncodeToString(sum[:])

	out = IngestionResult{SourcePath: abs, HashHex: hashHex, FileExt: ext}

	i.mu.Lock()
	prev, dup := i.seen[hashHex]
	i.mu.Unlock()
	if dup {
		out.JobID = prev
		out.Deduplicated = true
		i.logger.Info("ingest.deduplicated", "path", abs, "job_id", prev)
		return out, nil
	}

	id, err := i.Jobs.Submit(ctx, jobs.SubmitRequest{
		Filename: filepath.Base(abs),
		Content:  content,
		Config:   i.Config,
	})
	if err != nil {
		i.logger.Warn("ingest.submit_failed", "path", abs, "error", err)
		return out, err
	}

	i.mu.Lock()
	i.seen[hashHex] = id
	i.mu.Unlock()

	out.JobID = id
	out.SubmittedAt = time.Now().UTC()
	i.logger.Info("ingest.submitted", "path", abs, "job_id", id, "size_bytes", len(content))
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(
	ctx context.Context,
	root string,
	skipHidden bool,
) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !i.allowed(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}
