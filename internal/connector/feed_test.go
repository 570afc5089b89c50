package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Example Feed</title>
<item>
  <title>Newest post</title>
  <link>https://example.com/newest</link>
  <pubDate>Tue, 03 Mar 2026 12:00:00 GMT</pubDate>
  <description>Newest description</description>
  <category>go</category>
</item>
<item>
  <title>Middle post</title>
  <link>https://example.com/middle</link>
  <pubDate>Mon, 02 Mar 2026 12:00:00 GMT</pubDate>
  <description>Middle description</description>
</item>
<item>
  <title>Oldest post</title>
  <link>https://example.com/oldest</link>
  <pubDate>Sun, 01 Mar 2026 12:00:00 GMT</pubDate>
  <description>Oldest description</description>
</item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func feedConnectorFor(t *testing.T, srv *httptest.Server) Connector {
	t.Helper()
	conn, err := New(TypeFeed, json.RawMessage(`{"url": "`+srv.URL+`"}`), zerolog.Nop())
	if err != nil {
		t.Fatalf("New feed connector: %v", err)
	}
	return conn
}

func TestFeedFetchReturnsAllWithoutCursor(t *testing.T) {
	conn := feedConnectorFor(t, newFeedServer(t))

	items, next, err := conn.Fetch(context.Background(), "", 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Title != "Newest post" || items[0].URL != "https://example.com/newest" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].Snippet != "Newest description" {
		t.Fatalf("snippet = %q", items[0].Snippet)
	}

	newest := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if next != strconv.FormatInt(newest.Unix(), 10) {
		t.Fatalf("next cursor = %q, want %d", next, newest.Unix())
	}
}

func TestFeedFetchSkipsEntriesAtOrBeforeCursor(t *testing.T) {
	conn := feedConnectorFor(t, newFeedServer(t))

	middle := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cursor := strconv.FormatInt(middle.Unix(), 10)

	items, next, err := conn.Fetch(context.Background(), cursor, 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Title != "Newest post" {
		t.Fatalf("unexpected item: %+v", items[0])
	}

	newest := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if next != strconv.FormatInt(newest.Unix(), 10) {
		t.Fatalf("next cursor = %q", next)
	}
}

func TestFeedFetchIsNoOpWhenNothingNewer(t *testing.T) {
	conn := feedConnectorFor(t, newFeedServer(t))

	newest := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	cursor := strconv.FormatInt(newest.Unix(), 10)

	items, next, err := conn.Fetch(context.Background(), cursor, 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
	if next != "" {
		t.Fatalf("next cursor = %q, want empty", next)
	}
}

func TestFeedFetchHonorsLimit(t *testing.T) {
	conn := feedConnectorFor(t, newFeedServer(t))

	items, _, err := conn.Fetch(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}

func TestFeedFetchPropagatesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	conn := feedConnectorFor(t, srv)
	if _, _, err := conn.Fetch(context.Background(), "", 10); err == nil {
		t.Fatal("expected upstream failure to propagate")
	}
}

func TestFeedFetchRejectsMalformedCursor(t *testing.T) {
	conn := feedConnectorFor(t, newFeedServer(t))
	if _, _, err := conn.Fetch(context.Background(), "not-a-timestamp", 10); err == nil {
		t.Fatal("expected cursor parse error")
	}
}
