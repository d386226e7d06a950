// Package wikipedia 提供了与 MediaWiki API 交互的客户端。
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amaankhan02/movie-maestro/internal/config"
)

// Client 是 Wikipedia 检索 API 的瘦客户端。
type Client struct {
	cfg    config.WikipediaConfig
	client *http.Client
}

// NewClient 创建一个新的 Wikipedia 客户端实例。
func NewClient(cfg config.WikipediaConfig) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

// SearchResult 是全文检索接口返回的单条命中。
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Article 是文章抓取接口返回的载荷：导语加正文窗口、规范 URL 与缩略图。
type Article struct {
	Title     string `json:"title"`
	Extract   string `json:"extract"`
	FullURL   string `json:"fullurl"`
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// Search 对给定关键词做全文检索，无命中返回空切片。
func (c *Client) Search(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	params := url.Values{
		"action":   {"query"},
		"format":   {"json"},
		"list":     {"search"},
		"srsearch": {term},
		"srlimit":  {strconv.Itoa(limit)},
		"srprop":   {"snippet"},
	}

	var out struct {
		Query struct {
			Search []SearchResult `json:"search"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.Query.Search, nil
}

// FetchArticle 抓取指定标题的文章：前 sentences 句纯文本、规范 URL 与缩略图。
// 文章不存在时返回 nil。
func (c *Client) FetchArticle(ctx context.Context, pageTitle string, sentences int) (*Article, error) {
	params := url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"titles":      {pageTitle},
		"prop":        {"info|extracts|pageimages"},
		"inprop":      {"url"},
		"exsentences": {strconv.Itoa(sentences)},
		"explaintext": {"1"},
		"pithumbsize": {"500"},
	}

	var out struct {
		Query struct {
			Pages map[string]json.RawMessage `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}

	// pages 以 pageID 为键；"-1" 表示文章不存在
	for pageID, raw := range out.Query.Pages {
		if pageID == "-1" {
			return nil, nil
		}
		var article Article
		if err := json.Unmarshal(raw, &article); err != nil {
			return nil, fmt.Errorf("解析 Wikipedia 文章失败: %w", err)
		}
		if article.FullURL == "" {
			article.FullURL = "https://en.wikipedia.org/wiki/" + url.PathEscape(article.Title)
		}
		return &article, nil
	}
	return nil, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("创建 Wikipedia 请求失败: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("调用 Wikipedia 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Wikipedia 返回非 200 状态码: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 Wikipedia 响应失败: %w", err)
	}
	return nil
}
