package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrivalServer records when each request reaches it
func arrivalServer(t *testing.T) (*httptest.Server, func() []time.Time) {
	t.Helper()
	var (
		mu       sync.Mutex
		arrivals []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(redditListing))
	}))
	t.Cleanup(server.Close)
	return server, func() []time.Time {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Time(nil), arrivals...)
	}
}

func TestFetchPage_DelayBetweenPagesOnSameHost(t *testing.T) {
	server, arrivals := arrivalServer(t)
	cfg := testConfig(0)
	cfg.DelayPerHost = 150 * time.Millisecond
	pages := newTestPageFetcher(cfg)
	ctx := context.Background()

	_, err := pages.FetchPage(ctx, server.URL+"/r/pics/comments/abc/t/.json", false)
	require.NoError(t, err)
	_, err = pages.FetchPage(ctx, server.URL+"/r/pics/comments/def/u/.json", false)
	require.NoError(t, err)

	got := arrivals()
	require.Len(t, got, 2)
	// Jitter is +/- 10% of the remaining wait
	assert.GreaterOrEqual(t, got[1].Sub(got[0]), 120*time.Millisecond)
}

func TestFetchPage_FirstPageOnHostNotDelayed(t *testing.T) {
	server, _ := arrivalServer(t)
	cfg := testConfig(0)
	cfg.DelayPerHost = 5 * time.Second

	start := time.Now()
	_, err := newTestPageFetcher(cfg).FetchPage(context.Background(), server.URL, false)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSingleAttempt_SharesHostDelayWithPages(t *testing.T) {
	server, arrivals := arrivalServer(t)
	cfg := testConfig(0)
	cfg.DelayPerHost = 150 * time.Millisecond
	pages := newTestPageFetcher(cfg)
	ctx := context.Background()

	_, err := pages.FetchPage(ctx, server.URL+"/gallery", false)
	require.NoError(t, err)
	resp, err := pages.SingleAttempt().Get(ctx, server.URL+"/image.jpg", false)
	require.NoError(t, err)
	resp.Body.Close()

	got := arrivals()
	require.Len(t, got, 2)
	assert.GreaterOrEqual(t, got[1].Sub(got[0]), 120*time.Millisecond)
}

func TestFetchPage_CancelledWhileWaitingForHost(t *testing.T) {
	server, arrivals := arrivalServer(t)
	cfg := testConfig(0)
	cfg.DelayPerHost = 5 * time.Second
	pages := newTestPageFetcher(cfg)

	_, err := pages.FetchPage(context.Background(), server.URL, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = pages.FetchPage(ctx, server.URL, false)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, arrivals(), 1, "cancelled fetch never reaches the host")
}
