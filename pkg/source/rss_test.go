package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>科技新闻</title>
  <link>https://news.example.com</link>
  <item>
    <title>苹果推出新款 iPhone</title>
    <link>https://news.example.com/1</link>
    <guid>news-1</guid>
    <pubDate>Wed, 01 May 2024 08:00:00 GMT</pubDate>
    <description><![CDATA[<p>苹果公司今天<b>宣布</b>推出新品。</p><script>track()</script>]]></description>
  </item>
  <item>
    <title>   </title>
    <link>https://news.example.com/2</link>
  </item>
  <item>
    <title>无 GUID 的新闻</title>
    <link>https://news.example.com/3</link>
    <description>纯文本正文</description>
  </item>
</channel>
</rss>`

func TestParse(t *testing.T) {
	articles, err := Parse(strings.NewReader(feedXML))
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "news-1", first.ID)
	assert.Equal(t, "苹果推出新款 iPhone", first.Title)
	assert.Equal(t, "科技新闻", first.Source)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), first.PublishTime)
	assert.Contains(t, first.Text, "宣布")
	assert.NotContains(t, first.Text, "<b>")
	assert.NotContains(t, first.Text, "track()")

	second := articles[1]
	assert.Equal(t, "https://news.example.com/3", second.ID)
	assert.Equal(t, "纯文本正文", second.Text)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader("not a feed"))
	assert.Error(t, err)
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	rss := NewRSS(time.Second, nil)

	articles, err := rss.Fetch(context.Background(), srv.URL+"/feed")
	require.NoError(t, err)
	assert.Len(t, articles, 2)

	_, err = rss.Fetch(context.Background(), srv.URL+"/broken")
	assert.ErrorContains(t, err, "410")

	all := rss.FetchAll(context.Background(), []string{srv.URL + "/a", srv.URL + "/broken", "ftp://nope", srv.URL + "/b"}, 2)
	assert.Len(t, all, 4)
}
