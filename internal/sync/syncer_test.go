package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/gotify"
	"github.com/gotify-desk/deskd/internal/message"
)

func newTestCache(t *testing.T, limit int) *cache.Cache {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	return cache.NewCache(zap.NewNop(), t.TempDir(), func() int { return limit }, bus)
}

func newTestSyncer(t *testing.T, serverURL string, c *cache.Cache, limit int) *Syncer {
	t.Helper()
	client := gotify.NewClient(zap.NewNop(), serverURL, "tok")
	return NewSyncer(zap.NewNop(), client, c, message.NewMetaMap(), func() int { return limit })
}

func wire(id int64) message.WireMessage {
	return message.WireMessage{
		ID:    id,
		Date:  fmt.Sprintf("2024-05-01T10:%02d:%02dZ", (id/60)%60, id%60),
		Title: fmt.Sprintf("m%d", id),
	}
}

func writePage(w http.ResponseWriter, msgs []message.WireMessage) {
	_ = json.NewEncoder(w).Encode(message.WireMessageList{Messages: msgs})
}

func TestSyncRecent_PaginatesUntilTarget(t *testing.T) {
	// 250 messages server-side, newest first; the target of 250 forces two
	// pages (200 + 50).
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)

		since := int64(251)
		if s := r.URL.Query().Get("since"); s != "" {
			fmt.Sscanf(s, "%d", &since)
		}
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)

		var page []message.WireMessage
		for id := since - 1; id >= 1 && len(page) < limit; id-- {
			page = append(page, wire(id))
		}
		writePage(w, page)
	}))
	defer srv.Close()

	c := newTestCache(t, 250)
	s := newTestSyncer(t, srv.URL, c, 250)

	require.NoError(t, s.SyncRecent(context.Background()))

	assert.Equal(t, 250, c.Len())
	require.Len(t, requests, 2)
	assert.Equal(t, "limit=200", requests[0])
	assert.Equal(t, "limit=50&since=51", requests[1])
}

func TestSyncRecent_ShortPageStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fewer messages than asked for: this is everything the server has.
		writePage(w, []message.WireMessage{wire(3), wire(2), wire(1)})
	}))
	defer srv.Close()

	c := newTestCache(t, 50)
	s := newTestSyncer(t, srv.URL, c, 50)

	require.NoError(t, s.SyncRecent(context.Background()))
	assert.Equal(t, 3, c.Len())
}

func TestSyncRecent_EmptyServerYieldsEmptyCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, nil)
	}))
	defer srv.Close()

	c := newTestCache(t, 50)
	c.UpsertFront(message.Message{ID: 9, Title: "stale"})

	s := newTestSyncer(t, srv.URL, c, 50)
	require.NoError(t, s.SyncRecent(context.Background()))

	assert.Equal(t, 0, c.Len(), "an empty authoritative snapshot clears the cache")
}

func TestSyncRecent_StagnantCursorTerminates(t *testing.T) {
	// A misbehaving server repeats the same full page forever. The cursor
	// guard must stop the fetch instead of looping.
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := make([]message.WireMessage, 0, 200)
		for id := int64(200); id >= 1; id-- {
			page = append(page, wire(id))
		}
		writePage(w, page)
	}))
	defer srv.Close()

	c := newTestCache(t, 600)
	s := newTestSyncer(t, srv.URL, c, 600)

	require.NoError(t, s.SyncRecent(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 200, c.Len(), "duplicates from the repeated page are collapsed")
}

func TestSyncRecent_ServerErrorLeavesCacheUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t, 50)
	c.UpsertFront(message.Message{ID: 7, Title: "keep me"})

	s := newTestSyncer(t, srv.URL, c, 50)
	err := s.SyncRecent(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "keep me", c.Snapshot()[0].Title)
}

func TestSyncApplications_PopulatesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/application", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]message.WireApplication{
			{ID: 1, Name: "Backups", Image: "image/1.png"},
			{ID: 2, Name: "CI", Image: ""},
		})
	}))
	defer srv.Close()

	c := newTestCache(t, 10)
	client := gotify.NewClient(zap.NewNop(), srv.URL, "tok")
	meta := message.NewMetaMap()
	s := NewSyncer(zap.NewNop(), client, c, meta, func() int { return 10 })

	require.NoError(t, s.SyncApplications(context.Background()))

	name, icon := meta.Resolve(1)
	assert.Equal(t, "Backups", name)
	assert.Equal(t, srv.URL+"/image/1.png", icon)

	name, icon = meta.Resolve(2)
	assert.Equal(t, "CI", name)
	assert.Empty(t, icon)
}
