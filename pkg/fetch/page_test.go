package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func newTestPageFetcher(cfg *config.AppConfig) *HTTPPageFetcher {
	log := testLogger()
	return NewHTTPPageFetcher(NewFetcher(testClient(), cfg, log), NewRateLimiter(0, log), cfg, log)
}

func TestFetchPage_SendsUserAgentAndReturnsBody(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(0)
	cfg.UserAgent = "media-scraper-test"
	body, err := newTestPageFetcher(cfg).FetchPage(context.Background(), server.URL, false)

	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, "media-scraper-test", gotUA)
}

func TestFetchPage_SessionCookieOnlyWhenAuthenticated(t *testing.T) {
	var cookies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sessionid")
		if err == nil {
			cookies = append(cookies, c.Value)
		} else {
			cookies = append(cookies, "")
		}
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(0)
	cfg.InstagramSessionID = "abc123"
	pf := newTestPageFetcher(cfg)

	_, err := pf.FetchPage(context.Background(), server.URL, false)
	require.NoError(t, err)
	_, err = pf.FetchPage(context.Background(), server.URL, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "abc123"}, cookies)
}

func TestFetchPage_ClientErrorIsFetchFailure(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusNotFound})

	_, err := newTestPageFetcher(testConfig(2)).FetchPage(context.Background(), server.URL, false)

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFetchFailure)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)
	assert.Equal(t, "HTTP_404", utils.CategorizeError(err))
	assert.EqualValues(t, 1, attempts.Load())
}

func TestFetchPage_InvalidURL(t *testing.T) {
	_, err := newTestPageFetcher(testConfig(0)).FetchPage(context.Background(), "://bad", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFetchFailure)
}
