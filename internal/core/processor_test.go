package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/internal/common"
)

func testConfig() *common.Config {
	return &common.Config{
		Server: common.ServerConfig{GRPCAddr: ":0"},
		OCR:    common.OCRConfig{MaxAttempts: 1, MaxFileSizeMB: 1},
		LLM:    common.LLMConfig{RequestsPerSecond: 5, Burst: 1, Timeout: time.Second},
		Pipeline: common.PipelineConfig{
			MaxActiveJobs: 1,
			PageWorkers:   2,
			QueueSize:     4,
			JobTimeout:    time.Minute,
		},
		Defaults: common.JobDefaults{ModelBackend: "none", ConfidenceThreshold: 0.6},
	}
}

func TestModelFactory(t *testing.T) {
	f := ModelFactory(common.LLMConfig{APIKey: "sk-test", AnthropicAPIKey: "sk-ant-test"}, nil)

	m, err := f("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())

	m, err = f("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Name())

	m, err = f("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Name())

	_, err = f("bard")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = ModelFactory(common.LLMConfig{}, nil)("openai")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = ModelFactory(common.LLMConfig{}, nil)("anthropic")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestOpen_WithoutArchive(t *testing.T) {
	s, err := Open(context.Background(), testConfig(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, s.Archive)
	assert.NotNil(t, s.Jobs)
	assert.Empty(t, s.Jobs.List())
	require.NoError(t, s.Close(context.Background()))
}

func TestOpen_SQLiteArchive(t *testing.T) {
	cfg := testConfig()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "archive.db")

	s, err := Open(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, s.Archive)

	jobs, err := s.Archive.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	require.NoError(t, s.Close(context.Background()))
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.PageWorkers = 0
	_, err := Open(context.Background(), cfg, nil, nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}
