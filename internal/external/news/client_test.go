package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/httputil"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

const searchPage = `<html><body>
<ul class="news_list">
  <li>
    <dl>
      <dt class="title"><a href="https://news.example.com/a1">삼성전자, 반도체 영업이익 사상 최대</a></dt>
      <dd class="info"><span class="press">연합뉴스</span><span class="date">2025.03.05 09:10</span></dd>
    </dl>
  </li>
  <li>
    <dl>
      <dt class="title"><a href="https://news.example.com/a2">메모리 가격 랠리 지속 전망</a></dt>
      <dd class="info"><span class="press">로이터</span><span class="date">3시간 전</span></dd>
    </dl>
  </li>
  <li><dl><dt class="title"><a href="#"></a></dt></dl></li>
</ul>
</body></html>`

func newTestClient(baseURL string, maxHeadlines int) *Client {
	httpClient := httputil.New(testLog, 5*time.Second).DisableRetry()
	return NewClient(config.NewsConfig{BaseURL: baseURL, MaxHeadlines: maxHeadlines}, httpClient, nil, testLog)
}

func TestFetchNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "삼성전자", r.URL.Query().Get("query"))
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	headlines, err := newTestClient(srv.URL, 10).FetchNews(context.Background(), "삼성전자")
	require.NoError(t, err)
	require.Len(t, headlines, 2, "empty-title rows must be dropped")

	assert.Equal(t, "삼성전자, 반도체 영업이익 사상 최대", headlines[0].Title)
	assert.Equal(t, "연합뉴스", headlines[0].Source)
	assert.Equal(t, "https://news.example.com/a1", headlines[0].URL)
	assert.False(t, headlines[0].PublishedAt.IsZero())
	assert.False(t, headlines[1].PublishedAt.IsZero(), "relative timestamps must parse")
}

func TestFetchNews_MaxHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	headlines, err := newTestClient(srv.URL, 1).FetchNews(context.Background(), "삼성전자")
	require.NoError(t, err)
	assert.Len(t, headlines, 1)
}

func TestFetchNews_EmptyQuery(t *testing.T) {
	_, err := newTestClient("http://unused", 10).FetchNews(context.Background(), "")
	assert.Error(t, err)
}

func TestParsePublishedAt(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 5, 9, 10, 0, 0, time.UTC), parsePublishedAt("2025.03.05 09:10"))
	assert.True(t, parsePublishedAt("nonsense").IsZero())

	rel := parsePublishedAt("2일 전")
	assert.False(t, rel.IsZero())
	assert.True(t, rel.Before(time.Now().AddDate(0, 0, -1)))
}
