package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/satelit"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	urls, err := NewURLBuilder(srv.URL, satelit.SourceAnidb, Templates{})
	require.NoError(t, err)

	return NewClient(urls, time.Second)
}

func TestLatest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/anidb/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "1f0c", "hash": "abc", "source": "anidb"}`))
	})

	got, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Descriptor{ID: "1f0c", Hash: "abc", Source: satelit.SourceAnidb}, got)
}

func TestLatestLegacySourceTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "1f0c", "hash": "abc", "source": 1}`))
	})

	got, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, satelit.SourceAnidb, got.Source)
}

func TestLatestErrors(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
		kind saterrs.Kind
	}{
		{
			name: "non 2xx",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			kind: saterrs.HTTP,
		},
		{
			name: "not json",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			kind: saterrs.HTTP,
		},
		{
			name: "unknown source",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id": "1f0c", "hash": "abc", "source": "myanimelist"}`))
			},
			kind: saterrs.Service,
		},
		{
			name: "missing hash",
			h: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id": "1f0c", "source": "anidb"}`))
			},
			kind: saterrs.Service,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.h)

			_, err := c.Latest(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, saterrs.KindOf(err))
		})
	}
}

func TestLatestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	urls, err := NewURLBuilder(srv.URL, satelit.SourceAnidb, Templates{})
	require.NoError(t, err)
	c := NewClient(urls, 20*time.Millisecond)

	_, err = c.Latest(context.Background())
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.HTTP, err))
}

func TestURLBuilder(t *testing.T) {
	b, err := NewURLBuilder("http://indexer:8080/", satelit.SourceAnidb, Templates{})
	require.NoError(t, err)

	latest, err := b.Latest()
	require.NoError(t, err)
	assert.Equal(t, "http://indexer:8080/anidb/latest", latest)

	index, err := b.Index(satelit.IndexFile{Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "http://indexer:8080/anidb/index/abc", index)

	again, err := b.Index(satelit.IndexFile{Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, index, again)
}

func TestURLBuilderCustomTemplates(t *testing.T) {
	b, err := NewURLBuilder("http://indexer", satelit.SourceAnidb, Templates{
		Latest: "{{.Base}}/v2/latest?source={{.Source}}",
		Index:  "{{.Base}}/v2/files/{{.Hash}}.json",
	})
	require.NoError(t, err)

	latest, err := b.Latest()
	require.NoError(t, err)
	assert.Equal(t, "http://indexer/v2/latest?source=anidb", latest)

	index, err := b.Index(satelit.IndexFile{Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "http://indexer/v2/files/abc.json", index)
}

func TestURLBuilderBadTemplates(t *testing.T) {
	_, err := NewURLBuilder("http://indexer", satelit.SourceAnidb, Templates{Latest: "{{.Base"})
	require.Error(t, err, "malformed templates fail at construction")

	b, err := NewURLBuilder("http://indexer", satelit.SourceAnidb, Templates{Index: "{{.Base}}/{{.Checksum}}"})
	require.NoError(t, err)

	_, err = b.Index(satelit.IndexFile{Hash: "abc"})
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.Unexpected, err))
}
