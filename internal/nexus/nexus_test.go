package nexus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetch_OK(t *testing.T) {
	key := models.Key{Kind: models.KindEvent, Author: "alice", ID: "e1"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/index/event/alice/e1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.Resource{
			Version: models.VersionInfo{Sequence: 4, IndexedAt: 99},
			Social:  models.SocialData{Tags: []models.Tag{{Label: "jazz", Taggers: []string{"bob"}}}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	res, err := c.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, key, res.Key, "key stamped from the request")
	assert.Equal(t, uint64(4), res.Version.Sequence)
	assert.Len(t, res.Social.Tags, 1)
}

func TestFetch_NotFoundIsNotIndexed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.Fetch(context.Background(), models.Key{Kind: models.KindEvent, Author: "a", ID: "x"})
	assert.ErrorIs(t, err, common.ErrNotIndexed)
	assert.NotErrorIs(t, err, common.ErrIndexerFetch)
}

func TestFetch_ServerErrorIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.Fetch(context.Background(), models.Key{Kind: models.KindEvent, Author: "a", ID: "x"})
	assert.ErrorIs(t, err, common.ErrIndexerFetch)
}

func TestFetch_NetworkErrorIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.Fetch(context.Background(), models.Key{Kind: models.KindEvent, Author: "a", ID: "x"})
	assert.ErrorIs(t, err, common.ErrIndexerFetch)
}

func TestFetch_GarbledBodyIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.Fetch(context.Background(), models.Key{Kind: models.KindEvent, Author: "a", ID: "x"})
	assert.ErrorIs(t, err, common.ErrIndexerFetch)
}
