package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"horse.fit/radar/internal/langdetect"
)

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024
	DefaultMaxTextLen    = 10000

	defaultUserAgent = "Radar/1.0 (Research Tool; +https://horse.fit/radar)"

	snippetMaxLen    = 300
	summaryMinLen    = 50
	summaryMaxLen    = 500
	summarySentences = 3
)

// Result is the extraction output for one URL. Extraction never fails past
// its own boundary: on any error only Domain is populated.
type Result struct {
	Text        string
	Snippet     string
	Summary     string
	Domain      string
	Language    string
	ContentHash string
}

// Options controls HTTP behavior and text limits.
type Options struct {
	Timeout       time.Duration
	BodyByteLimit int64
	MaxTextLen    int
	UserAgent     string
	HTTPClient    *http.Client
}

// Extractor fetches a page and derives clean text plus snippet, summary,
// domain, language and content hash.
type Extractor struct {
	client     *http.Client
	bodyLimit  int64
	maxTextLen int
	userAgent  string
	logger     zerolog.Logger
}

func New(logger zerolog.Logger, opts Options) *Extractor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}
	maxTextLen := opts.MaxTextLen
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxTextLen
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Extractor{
		client:     client,
		bodyLimit:  bodyLimit,
		maxTextLen: maxTextLen,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Extract fetches the page and returns the best-effort extraction result.
func (e *Extractor) Extract(ctx context.Context, rawURL string) Result {
	result := Result{Domain: DomainOf(rawURL)}

	text, err := e.fetchAndParse(ctx, rawURL)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", rawURL).Msg("content extraction failed")
		return result
	}

	text = truncateRunes(text, e.maxTextLen)
	if text == "" {
		return result
	}

	result.Text = text
	result.Snippet = Snippet(text)
	result.Summary = Summary(text)
	result.Language = langdetect.DetectISO6391(text)
	result.ContentHash = HashContent(text)
	return result
}

func (e *Extractor) fetchAndParse(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.bodyLimit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if text := e.readabilityText(body, rawURL); text != "" {
		return text, nil
	}

	text, err := fallbackExtract(body)
	if err != nil {
		return "", fmt.Errorf("fallback extraction: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("no readable content")
	}
	return text, nil
}

func (e *Extractor) readabilityText(body []byte, rawURL string) string {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return ""
	}
	return normalizeWhitespace(rendered.String())
}

// fallbackExtract strips script/style/nav/header/footer elements and
// concatenates the remaining visible text.
func fallbackExtract(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, header, footer").Remove()
	return normalizeWhitespace(doc.Text()), nil
}

// Snippet returns the first ~300 characters cut at a word boundary, with an
// ellipsis when truncated.
func Snippet(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= snippetMaxLen {
		return text
	}

	cut := string(runes[:snippetMaxLen])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

// Summary returns the first paragraph when its length is between 50 and 500
// characters, otherwise the first three sentences capped at 500 characters.
func Summary(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	para, _, _ := strings.Cut(text, "\n\n")
	para = strings.TrimSpace(para)
	if len(para) > summaryMinLen && len(para) < summaryMaxLen {
		return para
	}

	sentences := strings.SplitN(text, ". ", summarySentences+1)
	if len(sentences) > summarySentences {
		sentences = sentences[:summarySentences]
	}
	summary := strings.Join(sentences, ". ")
	if len(summary) > summaryMaxLen {
		summary = summary[:summaryMaxLen]
	}
	return strings.TrimSpace(summary)
}

// HashContent returns the SHA-256 hex digest of whitespace- and
// case-normalized text, the exact-match dedup signal.
func HashContent(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DomainOf returns the host of the URL, or "" when it cannot be parsed.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return parsed.Host
}

// normalizeWhitespace collapses runs of whitespace inside lines while
// keeping paragraph breaks.
func normalizeWhitespace(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

func truncateRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
