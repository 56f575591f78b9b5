package preprocess

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Scratch is a per-job working directory holding page images.
// Release is safe to call more than once.
type Scratch struct {
	dir    string
	once   sync.Once
	logger *slog.Logger
}

func newScratch(base, prefix string, logger *slog.Logger) (*Scratch, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, err
		}
	}
	dir, err := os.MkdirTemp(base, "geoextract-"+prefix+"-*")
	if err != nil {
		return nil, err
	}
	return &Scratch{dir: dir, logger: logger}, nil
}

func (s *Scratch) Dir() string { return s.dir }

func (s *Scratch) Path(name string) string { return filepath.Join(s.dir, name) }

// Release removes the scratch directory.
func (s *Scratch) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.logger.Warn("preprocess.scratch.release_failed", "dir", s.dir, "error", err)
			return
		}
		s.logger.Debug("preprocess.scratch.released", "dir", s.dir)
	})
}
