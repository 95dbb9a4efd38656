package news

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/httputil"
	"github.com/wonny/pythia/backend/pkg/logger"
	"github.com/wonny/pythia/backend/pkg/redis"
)

// Client scrapes recent headlines for an instrument query.
// ⭐ SSOT: 뉴스 헤드라인 수집은 이 패키지에서만
type Client struct {
	httpClient   *httputil.Client
	cache        *redis.Cache
	baseURL      string
	maxHeadlines int
	logger       *logger.Logger
}

// NewClient creates a news client. cache may be nil.
func NewClient(cfg config.NewsConfig, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *Client {
	maxHeadlines := cfg.MaxHeadlines
	if maxHeadlines <= 0 {
		maxHeadlines = 10
	}
	return &Client{
		httpClient:   httpClient,
		cache:        cache,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxHeadlines: maxHeadlines,
		logger:       log,
	}
}

// FetchNews returns recent headlines matching the query, newest first.
// Failures here are soft: callers proceed without sentiment.
func (c *Client) FetchNews(ctx context.Context, query string) ([]contracts.Headline, error) {
	if query == "" {
		return nil, fmt.Errorf("empty news query")
	}

	cacheKey := redis.HeadlinesKey(query)
	if c.cache != nil {
		var cached []contracts.Headline
		if hit, _ := c.cache.Get(ctx, cacheKey, &cached); hit {
			return cached, nil
		}
	}

	reqURL := fmt.Sprintf("%s/news/search?query=%s", c.baseURL, url.QueryEscape(query))
	resp, err := c.httpClient.GetWithHeaders(ctx, reqURL, map[string]string{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	})
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read news response: %w", err)
	}

	headlines, err := c.parseSearchHTML(string(body))
	if err != nil {
		return nil, err
	}
	if len(headlines) > c.maxHeadlines {
		headlines = headlines[:c.maxHeadlines]
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, headlines, redis.TTLMedium); err != nil {
			c.logger.WithError(err).Warn("Headline cache write failed")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"query": query,
		"count": len(headlines),
	}).Debug("Fetched headlines")

	return headlines, nil
}

// parseSearchHTML extracts headline rows from the search result page.
// 구조: .news_list 아래 li마다 제목 링크(.title)와 출처/시각(.info)
func (c *Client) parseSearchHTML(html string) ([]contracts.Headline, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse news HTML: %w", err)
	}

	var headlines []contracts.Headline
	doc.Find(".news_list li, .news_list .news_item").Each(func(i int, item *goquery.Selection) {
		link := item.Find(".title a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		href, _ := link.Attr("href")
		source := strings.TrimSpace(item.Find(".info .press, .info .source").First().Text())
		published := parsePublishedAt(item.Find(".info .date, .info .time").First().Text())

		headlines = append(headlines, contracts.Headline{
			Title:       title,
			Source:      source,
			PublishedAt: published,
			URL:         href,
		})
	})

	return headlines, nil
}

// parsePublishedAt handles the page's absolute and relative timestamp forms
func parsePublishedAt(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}

	for _, layout := range []string{"2006.01.02 15:04", "2006.01.02", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}

	// 상대 표기: "3시간 전", "2일 전"
	now := time.Now()
	if strings.HasSuffix(text, "분 전") {
		if n := leadingInt(text); n > 0 {
			return now.Add(-time.Duration(n) * time.Minute)
		}
	}
	if strings.HasSuffix(text, "시간 전") {
		if n := leadingInt(text); n > 0 {
			return now.Add(-time.Duration(n) * time.Hour)
		}
	}
	if strings.HasSuffix(text, "일 전") {
		if n := leadingInt(text); n > 0 {
			return now.AddDate(0, 0, -n)
		}
	}
	return time.Time{}
}

func leadingInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}
