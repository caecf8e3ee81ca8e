package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testGetter(t *testing.T) *fetch.HTTPPageFetcher {
	return getterFor(t, config.Default())
}

// getterFor builds the download getter the way the grab command does
func getterFor(t *testing.T, cfg *config.AppConfig) *fetch.HTTPPageFetcher {
	t.Helper()
	log := testLogger()
	client, err := fetch.NewClient(cfg.HTTPClientSettings, "", log)
	require.NoError(t, err)
	pages := fetch.NewHTTPPageFetcher(fetch.NewFetcher(client, cfg, log), fetch.NewRateLimiter(0, log), cfg, log)
	return pages.SingleAttempt()
}

// flakyServer answers 503 for the first failures requests and then serves the body
func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server, hits
}

// mediaServer serves "/<name>" with body "content-of-<name>" and 404s for "/missing*"
func mediaServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("content-of-" + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func newTestDownloader(t *testing.T, dir string, store storage.DownloadStore, rec observe.Observer) *Downloader {
	t.Helper()
	return New(testGetter(t), NewResolver(), store, rec, testLogger(), Options{Dir: dir})
}

func TestRun_WritesFilesInOrder(t *testing.T) {
	server, _ := mediaServer(t)
	dir := filepath.Join(t.TempDir(), "downloads")
	rec := &observe.Recorder{}
	d := newTestDownloader(t, dir, nil, rec)

	queue := []models.MediaLink{
		{URL: server.URL + "/a.jpg", Kind: models.KindImage},
		{URL: server.URL + "/b.png?x=1", Kind: models.KindImage},
	}
	outcomes, err := d.Run(context.Background(), queue)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	for i, name := range []string{"a.jpg", "b.png"} {
		assert.True(t, outcomes[i].Written)
		assert.False(t, outcomes[i].Skipped)
		assert.Equal(t, name, outcomes[i].FileName)
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "content-of-"+name, string(data))
	}

	_, err = os.Stat(filepath.Join(dir, "a.jpg.part"))
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.Progress)
	assert.Contains(t, rec.Snapshot(), "Downloaded file 2 / 2")
}

func TestRun_SecondRunSkipsWithoutFetching(t *testing.T) {
	server, hits := mediaServer(t)
	dir := t.TempDir()
	queue := []models.MediaLink{{URL: server.URL + "/keep.jpg", Kind: models.KindImage}}

	_, err := newTestDownloader(t, dir, nil, nil).Run(context.Background(), queue)
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())

	// Mark the file so an overwrite would be visible
	path := filepath.Join(dir, "keep.jpg")
	require.NoError(t, os.WriteFile(path, []byte("local edit"), 0644))

	rec := &observe.Recorder{}
	outcomes, err := newTestDownloader(t, dir, nil, rec).Run(context.Background(), queue)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.False(t, outcomes[0].Written)
	assert.EqualValues(t, 1, hits.Load(), "no network fetch on skip")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local edit", string(data))
	assert.Contains(t, rec.Snapshot(), "File 1 / 1 already present, skipping")
}

func TestRun_FailedItemDoesNotStopBatch(t *testing.T) {
	server, _ := mediaServer(t)
	dir := t.TempDir()
	store := storage.NewMemoryStore()
	d := newTestDownloader(t, dir, store, nil)

	queue := []models.MediaLink{
		{URL: server.URL + "/missing.jpg", Kind: models.KindImage},
		{URL: server.URL + "/ok.jpg", Kind: models.KindImage},
	}
	outcomes, err := d.Run(context.Background(), queue)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Error(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[0].Err, utils.ErrFetchFailure)
	assert.False(t, outcomes[0].Written)
	assert.True(t, outcomes[1].Written)

	_, err = os.Stat(filepath.Join(dir, "missing.jpg"))
	assert.True(t, os.IsNotExist(err))

	status, entry, err := store.CheckDownload(server.URL + "/missing.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailure, status)
	assert.Equal(t, "HTTP_404", entry.ErrorType)

	status, entry, err = store.CheckDownload(server.URL + "/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusSuccess, status)
	assert.Equal(t, filepath.Join(dir, "ok.jpg"), entry.LocalPath)
}

func TestRun_InvariantViolationAbortsBeforeFetching(t *testing.T) {
	server, hits := mediaServer(t)
	dir := filepath.Join(t.TempDir(), "never")
	d := newTestDownloader(t, dir, nil, nil)

	queue := []models.MediaLink{
		{URL: server.URL + "/a.jpg", Kind: models.KindImage},
		{URL: server.URL + "/maxresdefault.jpg", Kind: models.KindImage, Role: models.RoleThumbnailPrimary},
	}
	outcomes, err := d.Run(context.Background(), queue)
	assert.ErrorIs(t, err, utils.ErrInvariant)
	assert.Empty(t, outcomes)
	assert.EqualValues(t, 0, hits.Load())
}

func TestRun_ThumbnailPairGetsDistinctFiles(t *testing.T) {
	server, _ := mediaServer(t)
	dir := t.TempDir()
	d := newTestDownloader(t, dir, nil, nil)

	queue := []models.MediaLink{
		{URL: server.URL + "/vi/abc123/maxresdefault.jpg", GroupID: "abc123", Role: models.RoleThumbnailPrimary},
		{URL: server.URL + "/vi/abc123/hqdefault.jpg", GroupID: "abc123", Role: models.RoleThumbnailFallback},
	}
	outcomes, err := d.Run(context.Background(), queue)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "abc123_maxresdefault.jpg", outcomes[0].FileName)
	assert.Equal(t, "abc123_hqdefault.jpg", outcomes[1].FileName)
	assert.True(t, outcomes[0].Written)
	assert.True(t, outcomes[1].Written)
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	d := New(testGetter(t), NewResolver(), nil, nil, testLogger(), Options{Dir: t.TempDir(), Retries: 2, RetryDelay: time.Millisecond})
	outcomes, err := d.Run(context.Background(), []models.MediaLink{{URL: server.URL + "/r.jpg", Kind: models.KindImage}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Written)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRun_DefaultConfigSendsEachDownloadOnce(t *testing.T) {
	server, hits := flakyServer(t, 1)
	cfg := config.Default()
	require.Positive(t, cfg.MaxRetries, "page fetches keep their retry budget")
	require.Zero(t, cfg.DownloadRetries)

	dir := t.TempDir()
	d := New(getterFor(t, cfg), NewResolver(), nil, nil, testLogger(), Options{
		Dir:        dir,
		Retries:    cfg.DownloadRetries,
		RetryDelay: cfg.DownloadRetryDelay,
	})
	outcomes, err := d.Run(context.Background(), []models.MediaLink{{URL: server.URL + "/once.mp4", Kind: models.KindVideo}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.EqualValues(t, 1, hits.Load())
	assert.False(t, outcomes[0].Written)
	assert.ErrorIs(t, outcomes[0].Err, utils.ErrServerHTTPError)
	_, statErr := os.Stat(filepath.Join(dir, "once.mp4"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_DownloadRetriesDoNotMultiply(t *testing.T) {
	server, hits := flakyServer(t, 100)
	cfg := config.Default()

	d := New(getterFor(t, cfg), NewResolver(), nil, nil, testLogger(), Options{Dir: t.TempDir(), Retries: 1, RetryDelay: time.Millisecond})
	outcomes, err := d.Run(context.Background(), []models.MediaLink{{URL: server.URL + "/twice.jpg", Kind: models.KindImage}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Error(t, outcomes[0].Err)
	assert.EqualValues(t, 2, hits.Load(), "one attempt plus one download retry")
}

func TestRun_SlowBodyOutlastsPageTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("first-"))
		w.(http.Flusher).Flush()
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("second"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.HTTPClientSettings.Timeout = 50 * time.Millisecond
	dir := t.TempDir()

	d := New(getterFor(t, cfg), NewResolver(), nil, nil, testLogger(), Options{Dir: dir})
	outcomes, err := d.Run(context.Background(), []models.MediaLink{{URL: server.URL + "/long.mp4", Kind: models.KindVideo}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	data, err := os.ReadFile(filepath.Join(dir, "long.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(data))
}

func TestRun_CancelledBetweenItems(t *testing.T) {
	server, hits := mediaServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	rec := &cancelOnFirstProgress{cancel: cancel}

	d := New(testGetter(t), NewResolver(), nil, rec, testLogger(), Options{Dir: t.TempDir(), ItemDelay: time.Second})
	outcomes, err := d.Run(ctx, []models.MediaLink{
		{URL: server.URL + "/1.jpg"}, {URL: server.URL + "/2.jpg"},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 1)
	assert.EqualValues(t, 1, hits.Load())
}

type cancelOnFirstProgress struct {
	observe.Nop
	cancel context.CancelFunc
}

func (c *cancelOnFirstProgress) DownloadProgress(int, int) { c.cancel() }

func TestGfycatStrategy_StreamsEmbeddedVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/HappyCat":
			_, _ = w.Write([]byte(`<html><body><video><source src="/giant/HappyCat.webm" type="video/webm"><source src="/giant/HappyCat.mp4" type="video/mp4"></video></body></html>`))
		case "/giant/HappyCat.mp4":
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	s := gfycatStrategy{get: testGetter(t)}
	body, err := s.Open(context.Background(), models.MediaLink{URL: server.URL + "/HappyCat", Kind: models.KindVideo})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))

	_, err = s.Open(context.Background(), models.MediaLink{URL: server.URL + "/nope"})
	assert.ErrorIs(t, err, utils.ErrFetchFailure)
}

func TestVideoSource_OGFallback(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><meta property="og:video" content="https://giant.gfycat.com/X.mp4"></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "https://giant.gfycat.com/X.mp4", videoSource(doc))
}

func TestStrategyFor(t *testing.T) {
	d := New(testGetter(t), nil, nil, nil, testLogger(), Options{})
	assert.Equal(t, "gfycat", d.strategyFor(models.MediaLink{URL: "https://gfycat.com/HappyCat"}).Name())
	assert.Equal(t, "bytes", d.strategyFor(models.MediaLink{URL: "https://giant.gfycat.com/HappyCat.mp4"}).Name())
	assert.Equal(t, "bytes", d.strategyFor(models.MediaLink{URL: "https://i.imgur.com/a.jpg"}).Name())
}
