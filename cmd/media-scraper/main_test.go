package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/pipeline"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func init() {
	color.NoColor = true
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
download_dir: "./media"
item_delay: 1s
persist_history: true
tumblr_gate_max_polls: 10
`
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "./media", cfg.DownloadDir)
	assert.Equal(t, time.Second, cfg.ItemDelay)
	assert.True(t, cfg.PersistHistory)
	assert.Equal(t, 10, cfg.TumblrGateMaxPolls)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadConfigOrDefault_MissingFile(t *testing.T) {
	cfg, err := loadConfigOrDefault(filepath.Join(t.TempDir(), "absent.yaml"), discardLogger())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "downloads", cfg.DownloadDir)
}

func TestDoValidate(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantCode   int
		wantStdout []string
		wantStderr string
	}{
		{
			name:       "valid",
			content:    "download_dir: out\n",
			wantCode:   0,
			wantStdout: []string{"OK: download_dir=out", "Configuration valid"},
		},
		{
			name:       "warning only",
			content:    "item_delay: -1s\n",
			wantCode:   0,
			wantStdout: []string{"WARN: item_delay cannot be negative", "Configuration valid"},
		},
		{
			name:       "bad proxy",
			content:    "proxy_url: ftp://proxy.local\n",
			wantCode:   1,
			wantStderr: "unsupported proxy_url scheme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(tt.content), 0644))

			var stdout, stderr bytes.Buffer
			code := doValidate(cfgPath, &stdout, &stderr)

			assert.Equal(t, tt.wantCode, code)
			for _, s := range tt.wantStdout {
				assert.Contains(t, stdout.String(), s)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doValidate("/nonexistent/config.yaml", &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestCollectInput(t *testing.T) {
	listPath := filepath.Join(t.TempDir(), "links.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("https://a.example/1\nhttps://a.example/2\n"), 0644))

	text, err := collectInput([]string{"https://x.example/0"}, listPath, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x.example/0", "https://a.example/1", "https://a.example/2"}, strings.Fields(text))

	text, err = collectInput(nil, "-", strings.NewReader("https://s.example/1 https://s.example/2"))
	require.NoError(t, err)
	assert.Len(t, strings.Fields(text), 2)

	_, err = collectInput(nil, "/nonexistent/links.txt", nil)
	assert.Error(t, err)
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		sub  pipeline.Submission
		want string
	}{
		{
			name: "accepted",
			sub: pipeline.Submission{Input: "u1", Result: models.AcceptResult{
				Status: models.AcceptAccepted, Extractor: "imgur", Links: make([]models.MediaLink, 3),
			}},
			want: "[OK] u1: imgur, 3 media",
		},
		{
			name: "duplicate",
			sub:  pipeline.Submission{Input: "u2", Result: models.AcceptResult{Status: models.AcceptAlreadyAdded}, Err: utils.ErrAlreadyAdded},
			want: "[WARN] u2: link already added",
		},
		{
			name: "unsupported",
			sub:  pipeline.Submission{Input: "u3", Result: models.AcceptResult{Status: models.AcceptNotRecognized}, Err: utils.ErrNotRecognized},
			want: "[WARN] u3: not a supported link",
		},
		{
			name: "structural",
			sub:  pipeline.Submission{Input: "u4", Err: utils.ErrStructuralParse},
			want: "[ERR] u4: page layout not understood (Content_StructuralParse)",
		},
		{
			name: "other",
			sub:  pipeline.Submission{Input: "u5", Err: errors.New("boom")},
			want: "[ERR] u5: failed (Unknown)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusLine(tt.sub))
		})
	}
}

func TestConsoleObserver_BarLifecycle(t *testing.T) {
	var buf bytes.Buffer
	c := newConsoleObserver(&buf)

	c.LogLine("Got URL - https://example.com")
	assert.Contains(t, buf.String(), "Got URL - https://example.com")

	c.DownloadProgress(1, 2)
	require.NotNil(t, c.bar)
	c.LogLine("Downloaded file 1 / 2")
	assert.NotContains(t, buf.String(), "Downloaded file 1 / 2")

	c.DownloadProgress(2, 2)
	c.BatchReset()
	assert.Nil(t, c.bar)
	c.finish()
}

func TestDoHistory(t *testing.T) {
	stateDir := t.TempDir()
	log := logrus.NewEntry(discardLogger())

	store, err := storage.NewBadgerStore(context.Background(), stateDir, true, log)
	require.NoError(t, err)
	for i, u := range []string{"https://a.example/1", "https://a.example/2"} {
		_, err := store.MarkTracked(u, &models.TrackedDBEntry{Status: models.TrackStatusTracked, TrackedAt: time.Unix(int64(i), 0)})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	outPath := filepath.Join(t.TempDir(), "history", "tracked.log")
	var stdout bytes.Buffer
	code := doHistory(context.Background(), stateDir, outPath, &stdout, log)
	require.Equal(t, 0, code)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/1\nhttps://a.example/2\n", string(data))
	assert.Contains(t, stdout.String(), "Wrote tracked URLs")
}
