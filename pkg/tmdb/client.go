// Package tmdb 提供了与 The Movie Database (TMDb) API 交互的客户端。
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/amaankhan02/movie-maestro/internal/config"
)

// Client 是 TMDb API 的瘦客户端，只负责取数与解码，不做业务判断。
type Client struct {
	cfg    config.TMDBConfig
	client *http.Client
}

// NewClient 创建一个新的 TMDb 客户端实例。
func NewClient(cfg config.TMDBConfig) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

// MovieSummary 是搜索接口返回的电影摘要。
type MovieSummary struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
}

// MovieDetail 是电影详情接口的完整载荷。
type MovieDetail struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Runtime     int     `json:"runtime"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	PosterPath  string  `json:"poster_path"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Cast []struct {
			Name      string `json:"name"`
			Character string `json:"character"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	Keywords struct {
		Keywords []struct {
			Name string `json:"name"`
		} `json:"keywords"`
	} `json:"keywords"`
	Images struct {
		Backdrops []struct {
			FilePath string `json:"file_path"`
		} `json:"backdrops"`
	} `json:"images"`
	WatchProviders struct {
		Results map[string]struct {
			Flatrate []struct {
				ProviderName string `json:"provider_name"`
			} `json:"flatrate"`
		} `json:"results"`
	} `json:"watch/providers"`
}

// PersonSummary 是人物搜索接口返回的摘要。
type PersonSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PersonDetail 是人物详情接口的完整载荷（含作品表与头像）。
type PersonDetail struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Biography          string `json:"biography"`
	Birthday           string `json:"birthday"`
	PlaceOfBirth       string `json:"place_of_birth"`
	KnownForDepartment string `json:"known_for_department"`
	ProfilePath        string `json:"profile_path"`
	CombinedCredits    struct {
		Cast []struct {
			Title       string `json:"title"`
			Name        string `json:"name"` // 电视作品用 name 字段
			MediaType   string `json:"media_type"`
			ReleaseDate string `json:"release_date"`
		} `json:"cast"`
		Crew []struct {
			Title     string `json:"title"`
			Job       string `json:"job"`
			MediaType string `json:"media_type"`
		} `json:"crew"`
	} `json:"combined_credits"`
}

// SearchMovie 按标题搜索电影，无命中时返回空切片。
func (c *Client) SearchMovie(ctx context.Context, title string) ([]MovieSummary, error) {
	var out struct {
		Results []MovieSummary `json:"results"`
	}
	params := url.Values{"query": {title}}
	if err := c.get(ctx, "/search/movie", params, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetMovieDetail 获取电影的完整详情，包含演职员、关键词、图片与观看渠道。
func (c *Client) GetMovieDetail(ctx context.Context, movieID int) (*MovieDetail, error) {
	var out MovieDetail
	params := url.Values{"append_to_response": {"images,credits,keywords,watch/providers"}}
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", movieID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMovieRating 仅获取电影的评分字段，避免过度取数。
func (c *Client) GetMovieRating(ctx context.Context, movieID int) (*MovieDetail, error) {
	var out MovieDetail
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", movieID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPerson 按姓名搜索人物，无命中时返回空切片。
func (c *Client) SearchPerson(ctx context.Context, name string) ([]PersonSummary, error) {
	var out struct {
		Results []PersonSummary `json:"results"`
	}
	params := url.Values{"query": {name}}
	if err := c.get(ctx, "/search/person", params, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetPersonDetail 获取人物传记、作品表与头像。
func (c *Client) GetPersonDetail(ctx context.Context, personID int) (*PersonDetail, error) {
	var out PersonDetail
	params := url.Values{"append_to_response": {"combined_credits"}}
	if err := c.get(ctx, fmt.Sprintf("/person/%d", personID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoviePageURL 返回电影在 TMDb 站点的规范详情页地址，作为引用 URL。
func (c *Client) MoviePageURL(movieID int) string {
	return fmt.Sprintf("%s/movie/%d", c.cfg.DetailURL, movieID)
}

// PersonPageURL 返回人物详情页地址。
func (c *Client) PersonPageURL(personID int) string {
	return fmt.Sprintf("%s/person/%d", c.cfg.DetailURL, personID)
}

// ImageURL 将 poster_path 等相对路径拼成完整图片地址，空路径返回空串。
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return c.cfg.ImageBaseURL + path
}

// get 发起一次带 api_key 的 GET 请求并解码 JSON 响应。
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("创建 TMDb 请求失败: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("调用 TMDb 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("TMDb 返回非 200 状态码: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 TMDb 响应失败: %w", err)
	}
	return nil
}
