package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pagedigest/internal/domain"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	fetchClientTimeout   = 30 * time.Second
	maxRedirects         = 10
	DefaultMaxPageBytes  = 5 << 20
	noiseSelectors       = "script, style, noscript, template, svg"
	feedDetectPeekBytes  = 1024
	feedItemSeparator    = "\n\n"
	contentTypeTextPlain = "text/plain"
)

var (
	ErrEmptyDocument = errors.New("document has no text content")
	ErrPageTooLarge  = errors.New("page exceeds size limit")
)

// Config controls chunking and the page size limit.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MaxPageBytes int64
}

// Loader fetches a web page and splits its text into ordered chunks.
type Loader struct {
	client       *http.Client
	splitter     *Splitter
	feedParser   *gofeed.Parser
	maxPageBytes int64
	log          *slog.Logger
}

// New builds a new loader instance.
func New(cfg Config, log *slog.Logger) *Loader {
	maxPageBytes := cfg.MaxPageBytes
	if maxPageBytes <= 0 {
		maxPageBytes = DefaultMaxPageBytes
	}

	return &Loader{
		client: &http.Client{
			Timeout: fetchClientTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		splitter:     NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		feedParser:   gofeed.NewParser(),
		maxPageBytes: maxPageBytes,
		log:          log,
	}
}

func (l *Loader) Load(ctx context.Context, pageURL string) ([]domain.Chunk, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", withoutURL(err))
	}

	body, contentType, err := l.fetch(ctx, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	title, text, kind, err := l.extract(parsedURL, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	pieces := l.splitter.Split(text)
	if len(pieces) == 0 {
		return nil, ErrEmptyDocument
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			Index:  i,
			Text:   piece,
			Source: parsedURL.String(),
			Title:  title,
		}
	}

	l.log.DebugContext(ctx, "Document is loaded",
		"kind", kind,
		"bytes", len(body),
		"textRunes", runeLen(text),
		"chunkCount", len(chunks))

	return chunks, nil
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req) //nolint:gosec // User-supplied URL is the whole point.
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", withoutURL(err))
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			l.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"operation", "fetch")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxPageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	if int64(len(body)) > l.maxPageBytes {
		return nil, "", fmt.Errorf("%w (limit = %d bytes)", ErrPageTooLarge, l.maxPageBytes)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// withoutURL drops the page address from *url.Error so errors can be logged.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}

	return err
}

func (l *Loader) extract(u *url.URL, body []byte, contentType string) (string, string, string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	if mediaType == contentTypeTextPlain {
		return "", string(body), "text", nil
	}

	if isFeed(mediaType, body) {
		title, text, feedErr := l.extractFeed(body)
		if feedErr == nil {
			return title, text, "feed", nil
		}
		if mediaType != "text/html" && mediaType != "" {
			return "", "", "", fmt.Errorf("parse feed: %w", feedErr)
		}
	}

	if title, text := extractReadable(u, body); strings.TrimSpace(text) != "" {
		return title, text, "article", nil
	}

	title, text, err := extractAllText(body)
	if err != nil {
		return "", "", "", err
	}

	return title, text, "page", nil
}

func isFeed(mediaType string, body []byte) bool {
	switch mediaType {
	case "application/rss+xml", "application/atom+xml", "application/feed+json":
		return true
	case "text/html", "application/xhtml+xml":
		return false
	}

	peek := body
	if len(peek) > feedDetectPeekBytes {
		peek = peek[:feedDetectPeekBytes]
	}

	return gofeed.DetectFeedType(bytes.NewReader(peek)) != gofeed.FeedTypeUnknown
}

// extractFeed turns every feed item into a titled paragraph, in feed order.
func (l *Loader) extractFeed(body []byte) (string, string, error) {
	feed, err := l.feedParser.Parse(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	var b strings.Builder

	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		content := item.Content
		if strings.TrimSpace(content) == "" {
			content = item.Description
		}

		text := strings.TrimSpace(htmlToText(content))
		itemTitle := strings.TrimSpace(item.Title)
		if itemTitle == "" && text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString(feedItemSeparator)
		}
		if itemTitle != "" {
			b.WriteString(itemTitle)
			b.WriteString("\n")
		}
		b.WriteString(text)
	}

	return strings.TrimSpace(feed.Title), b.String(), nil
}

func extractReadable(u *url.URL, body []byte) (string, string) {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", ""
	}

	return strings.TrimSpace(article.Title), strings.TrimSpace(article.TextContent)
}

// extractAllText keeps every visible text node of the page, the way a plain
// HTML-to-text loader does.
func extractAllText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create document from reader: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(noiseSelectors).Remove()
	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, pre, blockquote").Each(
		func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n\n")
		},
	)

	return title, collapseBlankLines(doc.Find("body").Text()), nil
}

func htmlToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	doc.Find(noiseSelectors).Remove()

	return collapseBlankLines(doc.Text())
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank <= 1 && len(out) > 0 {
				out = append(out, "")
			}
			continue
		}

		blank = 0
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
