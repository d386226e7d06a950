package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(config.TMDBConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		ImageBaseURL: "https://image.tmdb.org/t/p/w500",
		DetailURL:    "https://www.themoviedb.org",
	})
}

func TestSearchMovieInjectsAPIKey(t *testing.T) {
	var gotKey, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		gotQuery = r.URL.Query().Get("query")
		fmt.Fprint(w, `{"results":[{"id":27205,"title":"Inception","vote_average":8.4}]}`)
	}))
	defer server.Close()

	results, err := testClient(server.URL).SearchMovie(context.Background(), "Inception")
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "Inception", gotQuery)
	require.Len(t, results, 1)
	assert.Equal(t, 27205, results[0].ID)
}

func TestGetMovieDetailAppendsSubresources(t *testing.T) {
	var gotAppend string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/27205", r.URL.Path)
		gotAppend = r.URL.Query().Get("append_to_response")
		fmt.Fprint(w, `{
			"id": 27205,
			"title": "Inception",
			"credits": {"crew": [{"name": "Christopher Nolan", "job": "Director"}]},
			"keywords": {"keywords": [{"name": "dream"}]},
			"watch/providers": {"results": {"US": {"flatrate": [{"provider_name": "Netflix"}]}}}
		}`)
	}))
	defer server.Close()

	detail, err := testClient(server.URL).GetMovieDetail(context.Background(), 27205)
	require.NoError(t, err)

	// 一次调用带齐演职员、关键词、图片与观看渠道
	assert.Equal(t, "images,credits,keywords,watch/providers", gotAppend)
	require.Len(t, detail.Credits.Crew, 1)
	assert.Equal(t, "Director", detail.Credits.Crew[0].Job)
	assert.Equal(t, "Netflix", detail.WatchProviders.Results["US"].Flatrate[0].ProviderName)
}

func TestGetMovieRatingOmitsSubresources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("append_to_response"))
		fmt.Fprint(w, `{"id":27205,"title":"Inception","vote_average":8.4,"vote_count":34000}`)
	}))
	defer server.Close()

	detail, err := testClient(server.URL).GetMovieRating(context.Background(), 27205)
	require.NoError(t, err)
	assert.Equal(t, 8.4, detail.VoteAverage)
	assert.Equal(t, 34000, detail.VoteCount)
}

func TestNonOKStatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).SearchMovie(context.Background(), "Inception")
	assert.Error(t, err)
}

func TestURLBuilders(t *testing.T) {
	c := testClient("http://unused")

	assert.Equal(t, "https://www.themoviedb.org/movie/27205", c.MoviePageURL(27205))
	assert.Equal(t, "https://www.themoviedb.org/person/525", c.PersonPageURL(525))
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/poster.jpg", c.ImageURL("/poster.jpg"))
	assert.Empty(t, c.ImageURL(""))
}
