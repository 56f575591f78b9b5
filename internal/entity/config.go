package entity

import (
	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
)

// BBox is a geographic bounding box in decimal degrees (inclusive).
type BBox struct {
	MinLat float64 `json:"min_lat" toml:"min_lat"`
	MinLon float64 `json:"min_lon" toml:"min_lon"`
	MaxLat float64 `json:"max_lat" toml:"max_lat"`
	MaxLon float64 `json:"max_lon" toml:"max_lon"`
}

// Contains reports whether (lat, lon) lies inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// JobConfig is the configuration bundle submitted with a document.
type JobConfig struct {
	OCRBackend          string   `json:"ocr_backend" toml:"ocr_backend"`
	ModelBackend        string   `json:"model_backend" toml:"model_backend"`
	ResolutionDPI       int      `json:"resolution_dpi" toml:"resolution_dpi"`
	RegionOfInterest    *BBox    `json:"region_of_interest,omitempty" toml:"region_of_interest"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" toml:"confidence_threshold"`
	Language            string   `json:"language" toml:"language"`
	MergePolicy         string   `json:"merge_policy,omitempty" toml:"merge_policy"`
}

// Threshold returns the configured confidence threshold or the default.
func (c JobConfig) Threshold() float64 {
	if c.ConfidenceThreshold == nil {
		return constants.DefaultConfidenceThreshold
	}
	return *c.ConfidenceThreshold
}

// WithDefaults fills unset fields from def, then from package defaults.
func (c JobConfig) WithDefaults(def JobConfig) JobConfig {
	if c.OCRBackend == "" {
		c.OCRBackend = def.OCRBackend
	}
	if c.OCRBackend == "" {
		c.OCRBackend = constants.OCRTesseract
	}
	if c.ModelBackend == "" {
		c.ModelBackend = def.ModelBackend
	}
	if c.ModelBackend == "" {
		c.ModelBackend = constants.ModelNone
	}
	if c.ResolutionDPI == 0 {
		c.ResolutionDPI = def.ResolutionDPI
	}
	if c.ResolutionDPI == 0 {
		c.ResolutionDPI = constants.DefaultDPI
	}
	if c.RegionOfInterest == nil && def.RegionOfInterest != nil {
		roi := *def.RegionOfInterest
		c.RegionOfInterest = &roi
	}
	if c.ConfidenceThreshold == nil && def.ConfidenceThreshold != nil {
		t := *def.ConfidenceThreshold
		c.ConfidenceThreshold = &t
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.Language == "" {
		c.Language = constants.DefaultLanguage
	}
	if c.MergePolicy == "" {
		c.MergePolicy = def.MergePolicy
	}
	if c.MergePolicy == "" {
		c.MergePolicy = constants.MergePreferConfidence
	}
	return c
}

// Validate checks enum membership and numeric ranges.
func (c JobConfig) Validate() error {
	v := common.NewValidator().
		Field("ocr_backend", c.OCRBackend, common.Required, common.OneOf(constants.OCRTesseract, constants.OCRGosseract, constants.OCRCombined)).
		Field("model_backend", c.ModelBackend, common.Required, common.OneOf(constants.ModelNone, constants.ModelOpenAI, constants.ModelOllama, constants.ModelAnthropic)).
		Field("resolution_dpi", c.ResolutionDPI, common.InRange(constants.MinDPI, constants.MaxDPI)).
		Field("confidence_threshold", c.Threshold(), common.InRange(0, 1)).
		Field("language", c.Language, common.Required, common.OneOf(constants.LanguageCodes()...)).
		Field("merge_policy", c.MergePolicy, common.OneOf(constants.MergePreferConfidence, constants.MergePreferPattern, constants.MergePreferModel))
	if r := c.RegionOfInterest; r != nil {
		v.Field("region_of_interest.min_lat", r.MinLat, common.InRange(-90, 90)).
			Field("region_of_interest.max_lat", r.MaxLat, common.InRange(-90, 90)).
			Field("region_of_interest.min_lon", r.MinLon, common.InRange(-180, 180)).
			Field("region_of_interest.max_lon", r.MaxLon, common.InRange(-180, 180))
		if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
			v.Field("region_of_interest", *r, func(name string, value interface{}) *common.ValidationError {
				return &common.ValidationError{Field: name, Value: value, Message: "min must not exceed max"}
			})
		}
	}
	return v.Err()
}
