package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/security"
)

const (
	defaultSearchURL = "https://html.duckduckgo.com/html/"

	searchUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0 Safari/537.36"

	maxSearchResponseSize = 2 << 20 // 2MB
	maxPageBodySize       = 4 << 20 // 4MB

	defaultSearchResults = 5
	maxSearchResults     = 10

	defaultContentLength = 2000
	maxContentLength     = 10000
)

// Web implements the web_search and get_web_content tools.
type Web struct {
	validator *security.URLValidator
	client    *http.Client
	scraper   config.WebScraperConfig
	searchURL string
	logger    log.Logger
}

// NewWeb creates the web tool set. client is the SSRF-safe client used
// for searches; page fetches go through colly with the same transport.
func NewWeb(validator *security.URLValidator, client *http.Client, scraper config.WebScraperConfig, logger log.Logger) *Web {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Web{
		validator: validator,
		client:    client,
		scraper:   scraper,
		searchURL: defaultSearchURL,
		logger:    logger,
	}
}

// SearchInput is the input for web_search.
type SearchInput struct {
	Query      string `json:"query" jsonschema_description:"Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema_description:"Maximum number of results, 1-10 (default 5)"`
}

// ContentInput is the input for get_web_content.
type ContentInput struct {
	URL       string `json:"url" jsonschema_description:"URL of the page to fetch and extract readable content from"`
	MaxLength int    `json:"max_length,omitempty" jsonschema_description:"Maximum characters of extracted text (default 2000)"`
}

// Search queries DuckDuckGo's HTML endpoint and scrapes the result list.
func (w *Web) Search(ctx context.Context, in SearchInput) Result {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Errorf(ErrCodeValidation, "query is required")
	}

	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	q := url.Values{}
	q.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return Errorf(ErrCodeExecution, "failed to build search request: %v", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return Errorf(ErrCodeNetwork, "search failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Errorf(ErrCodeNetwork, "search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxSearchResponseSize))
	if err != nil {
		return Errorf(ErrCodeExecution, "failed to parse search results: %v", err)
	}

	var results []map[string]any
	doc.Find("div.result__body").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a")
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(s.Find("a.result__snippet").Text())
		if title == "" || href == "" {
			return true
		}
		results = append(results, map[string]any{
			"title":   title,
			"url":     resolveResultURL(href),
			"snippet": snippet,
		})
		return len(results) < maxResults
	})

	if len(results) == 0 {
		return Errorf(ErrCodeNotFound, "no results found for: %s", query)
	}

	return Success(
		fmt.Sprintf("Found %d results for %q", len(results), query),
		map[string]any{
			"query":   query,
			"results": results,
		},
	)
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=...)
// to the target URL. Unrecognized hrefs pass through unchanged.
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if !strings.HasSuffix(u.Path, "/l/") && u.Path != "/l/" {
		return href
	}
	target := u.Query().Get("uddg")
	if target == "" {
		return href
	}
	return target
}

// FetchContent fetches a page and extracts its readable text.
func (w *Web) FetchContent(ctx context.Context, in ContentInput) Result {
	rawURL := strings.TrimSpace(in.URL)
	if rawURL == "" {
		return Errorf(ErrCodeValidation, "url is required")
	}
	if err := w.validator.Validate(rawURL); err != nil {
		return Errorf(ErrCodeSecurity, "url rejected: %v", err)
	}

	maxLength := in.MaxLength
	if maxLength <= 0 {
		maxLength = defaultContentLength
	}
	if maxLength > maxContentLength {
		maxLength = maxContentLength
	}

	c := colly.NewCollector(
		colly.UserAgent(searchUserAgent),
		colly.MaxBodySize(maxPageBodySize),
	)
	c.WithTransport(w.validator.SafeTransport())
	c.SetRedirectHandler(w.validator.ValidateRedirect)
	c.SetRequestTimeout(time.Duration(w.scraper.TimeoutMs) * time.Millisecond)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: w.scraper.Parallelism,
		Delay:       time.Duration(w.scraper.DelayMs) * time.Millisecond,
	}); err != nil {
		return Errorf(ErrCodeExecution, "failed to configure fetcher: %v", err)
	}

	var (
		article  readability.Article
		parseErr error
		fetched  bool
	)
	c.OnResponse(func(r *colly.Response) {
		fetched = true
		article, parseErr = readability.FromReader(bytes.NewReader(r.Body), r.Request.URL)
	})

	if err := c.Visit(rawURL); err != nil {
		return Errorf(ErrCodeNetwork, "failed to fetch %s: %v", rawURL, err)
	}
	c.Wait()

	if !fetched {
		return Errorf(ErrCodeNetwork, "no response from %s", rawURL)
	}
	if parseErr != nil {
		return Errorf(ErrCodeExecution, "failed to extract content: %v", parseErr)
	}

	text := normalizeText(article.TextContent)
	if text == "" {
		return Errorf(ErrCodeNotFound, "no readable content at %s", rawURL)
	}

	truncated := false
	if runes := []rune(text); len(runes) > maxLength {
		text = string(runes[:maxLength]) + "..."
		truncated = true
	}

	return Success(
		fmt.Sprintf("Extracted content from %s", rawURL),
		map[string]any{
			"url":       rawURL,
			"title":     article.Title,
			"content":   text,
			"truncated": truncated,
		},
	)
}

// normalizeText trims lines and collapses blank runs left behind by
// boilerplate removal.
func normalizeText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
