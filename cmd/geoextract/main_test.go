package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/export"
)

func TestParseFormats(t *testing.T) {
	got, err := parseFormats("csv, excel,csv")
	require.NoError(t, err)
	assert.Equal(t, []export.Format{export.CSV, export.XLSX}, got)

	got, err = parseFormats("")
	require.NoError(t, err)
	assert.Equal(t, export.Formats(), got)

	_, err = parseFormats("shp")
	assert.Error(t, err)
}

func TestJobConfig(t *testing.T) {
	def := common.JobDefaults{OCRBackend: "tesseract", ModelBackend: "none", ResolutionDPI: 300, ConfidenceThreshold: 0.6, Language: "en"}

	c, err := jobConfig(def, submitFlags{threshold: -1})
	require.NoError(t, err)
	assert.Equal(t, 300, c.ResolutionDPI)
	assert.InDelta(t, 0.6, c.Threshold(), 1e-9)
	assert.Nil(t, c.RegionOfInterest)

	c, err = jobConfig(def, submitFlags{dpi: 150, threshold: 0, language: "fr", roi: "34,-118,36,-117"})
	require.NoError(t, err)
	assert.Equal(t, 150, c.ResolutionDPI)
	assert.Zero(t, c.Threshold())
	assert.Equal(t, "fr", c.Language)
	require.NotNil(t, c.RegionOfInterest)
	assert.Equal(t, -118.0, c.RegionOfInterest.MinLon)

	_, err = jobConfig(def, submitFlags{threshold: -1, roi: "1,2,3"})
	assert.ErrorContains(t, err, "--roi")

	_, err = jobConfig(def, submitFlags{threshold: -1, model: "bard"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
