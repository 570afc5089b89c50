package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSnippetShortTextPassesThrough(t *testing.T) {
	if got := Snippet("a short text"); got != "a short text" {
		t.Fatalf("snippet = %q", got)
	}
}

func TestSnippetCutsAtWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 100) // 500 chars
	got := Snippet(text)

	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	body := strings.TrimSuffix(got, "...")
	if len(body) > 300 {
		t.Fatalf("snippet body too long: %d", len(body))
	}
	if strings.HasSuffix(body, " ") {
		t.Fatalf("snippet body has trailing space: %q", body)
	}
}

func TestSummaryPrefersFirstParagraph(t *testing.T) {
	para := strings.Repeat("An opening paragraph. ", 5) // ~110 chars
	text := strings.TrimSpace(para) + "\n\nSecond paragraph follows here."

	got := Summary(text)
	if got != strings.TrimSpace(para) {
		t.Fatalf("summary = %q, want first paragraph", got)
	}
}

func TestSummaryFallsBackToSentences(t *testing.T) {
	// Single paragraph longer than 500 chars, so the sentence fallback wins.
	s1 := "First sentence " + strings.Repeat("alpha ", 40)
	s2 := "Second sentence " + strings.Repeat("beta ", 40)
	text := strings.TrimSpace(s1) + ". " + strings.TrimSpace(s2) + ". Third one. Fourth never appears."

	got := Summary(text)
	if !strings.HasPrefix(got, "First sentence") {
		t.Fatalf("summary should start with the first sentence: %q", got)
	}
	if strings.Contains(got, "Fourth never appears") {
		t.Fatalf("summary leaked the fourth sentence: %q", got)
	}
	if len(got) > 500 {
		t.Fatalf("summary length %d exceeds cap", len(got))
	}
}

func TestSummaryCapsLength(t *testing.T) {
	text := strings.Repeat("x", 2000)
	if got := Summary(text); len(got) > 500 {
		t.Fatalf("summary length %d exceeds cap", len(got))
	}
}

func TestHashContentNormalizes(t *testing.T) {
	a := HashContent("The Quick  Brown Fox")
	b := HashContent("the quick brown\tfox")
	if a == "" || a != b {
		t.Fatalf("normalized texts should hash identically: %q vs %q", a, b)
	}
	if HashContent("") != "" {
		t.Fatal("empty text should hash to empty string")
	}
}

func TestDomainOf(t *testing.T) {
	if got := DomainOf("https://news.example.com/a/b?q=1"); got != "news.example.com" {
		t.Fatalf("domain = %q", got)
	}
	if got := DomainOf("::not a url"); got != "" {
		t.Fatalf("domain of invalid url = %q, want empty", got)
	}
}

func TestExtractStripsChromeViaFallback(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>body{}</style></head>
<body><nav>Navigation</nav><header>Site header</header>
<p>` + strings.Repeat("Readable article body text. ", 10) + `</p>
<footer>Footer links</footer></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	e := New(zerolog.Nop(), Options{HTTPClient: srv.Client()})
	got := e.Extract(context.Background(), srv.URL+"/article")

	if got.Text == "" {
		t.Fatal("expected extracted text")
	}
	if strings.Contains(got.Text, "var x = 1") || strings.Contains(got.Text, "Navigation") {
		t.Fatalf("chrome leaked into extracted text: %q", got.Text)
	}
	if !strings.Contains(got.Text, "Readable article body text.") {
		t.Fatalf("body text missing: %q", got.Text)
	}
	if got.Snippet == "" || got.ContentHash == "" {
		t.Fatal("expected snippet and content hash")
	}

	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got.Domain != parsed.Host {
		t.Fatalf("domain = %q, want %q", got.Domain, parsed.Host)
	}
}

func TestExtractTruncatesText(t *testing.T) {
	html := "<html><body><p>" + strings.Repeat("word ", 2000) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	e := New(zerolog.Nop(), Options{HTTPClient: srv.Client(), MaxTextLen: 100})
	got := e.Extract(context.Background(), srv.URL)

	if len([]rune(got.Text)) > 100 {
		t.Fatalf("text length %d exceeds configured maximum", len([]rune(got.Text)))
	}
}

func TestExtractDegradesToDomainOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(zerolog.Nop(), Options{HTTPClient: srv.Client()})
	got := e.Extract(context.Background(), srv.URL+"/missing")

	if got.Text != "" || got.Snippet != "" || got.Summary != "" || got.ContentHash != "" {
		t.Fatalf("expected empty result fields, got %+v", got)
	}
	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got.Domain != parsed.Host {
		t.Fatalf("domain = %q, want %q", got.Domain, parsed.Host)
	}
}
