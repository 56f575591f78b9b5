package jobs

import (
	"time"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

type Config struct {
	MaxActiveJobs int
	QueueSize     int
	JobTimeout    time.Duration
	MaxFileSize   int64
	Defaults      entity.JobConfig
}

// ConfigFrom builds the orchestrator settings from the application config.
func ConfigFrom(cfg *common.Config) Config {
	return Config{
		MaxActiveJobs: cfg.Pipeline.MaxActiveJobs,
		QueueSize:     cfg.Pipeline.QueueSize,
		JobTimeout:    cfg.Pipeline.JobTimeout,
		MaxFileSize:   int64(cfg.OCR.MaxFileSizeMB) << 20,
		Defaults:      DefaultsFrom(cfg.Defaults),
	}
}

// DefaultsFrom converts configured job defaults into a JobConfig usable with
// JobConfig.WithDefaults.
func DefaultsFrom(d common.JobDefaults) entity.JobConfig {
	out := entity.JobConfig{
		OCRBackend:    d.OCRBackend,
		ModelBackend:  d.ModelBackend,
		ResolutionDPI: d.ResolutionDPI,
		Language:      d.Language,
		MergePolicy:   d.MergePolicy,
	}
	if d.ConfidenceThreshold > 0 {
		t := d.ConfidenceThreshold
		out.ConfidenceThreshold = &t
	}
	if r := d.RegionOfInterest; r != nil {
		out.RegionOfInterest = &entity.BBox{MinLat: r[0], MinLon: r[1], MaxLat: r[2], MaxLon: r[3]}
	}
	return out
}
