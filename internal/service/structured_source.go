package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/tmdb"
)

// 对比类查询最多解析的标题数；每部电影附带的图片上限。
const (
	maxComparisonTitles = 3
	maxMovieImages      = 3
)

// StructuredSource 是结构化电影数据源的适配器：按 intent 解析实体并取数，
// 每一次独立的 API 调用产出恰好一条 SourceRecord。
type StructuredSource interface {
	// Fetch 无匹配实体时返回空切片（不是错误）；传输/鉴权失败时返回
	// 包装了 ErrSourceUnavailable 的错误。
	Fetch(ctx context.Context, intent model.StructuredIntent, query string, history []model.ConversationTurn) ([]model.SourceRecord, error)
}

type structuredSource struct {
	llmClient  llm.Client
	tmdbClient *tmdb.Client
}

// NewStructuredSource 创建一个新的 StructuredSource 实例。
func NewStructuredSource(llmClient llm.Client, tmdbClient *tmdb.Client) StructuredSource {
	return &structuredSource{llmClient: llmClient, tmdbClient: tmdbClient}
}

const entityPromptTemplate = `Extract the entity names this movie query refers to.

Query: %s
%s
If the query uses pronouns or references to earlier turns, resolve them to the concrete
movie title or person name from the conversation context.

Respond with JSON only:
{"titles": ["movie titles mentioned or referred to"], "people": ["actor/director names mentioned or referred to"]}`

type entityOutput struct {
	Titles []string `json:"titles"`
	People []string `json:"people"`
}

// Fetch 按 intent 分派到对应的取数策略。
func (s *structuredSource) Fetch(ctx context.Context, intent model.StructuredIntent, query string, history []model.ConversationTurn) ([]model.SourceRecord, error) {
	if intent == model.IntentNone {
		return []model.SourceRecord{}, nil
	}

	entities, err := s.resolveEntities(ctx, query, history)
	if err != nil {
		// 实体解析失败视为无匹配，而不是数据源故障
		log.Warnf("[StructuredSource] 实体解析失败, 返回空记录: %v", err)
		return []model.SourceRecord{}, nil
	}

	switch intent {
	case model.IntentPersonLookup:
		return s.fetchPerson(ctx, entities.People)
	case model.IntentRatingLookup:
		return s.fetchRatings(ctx, entities.Titles)
	case model.IntentComparison:
		return s.fetchMovies(ctx, entities.Titles, maxComparisonTitles)
	default: // title_lookup
		return s.fetchMovies(ctx, entities.Titles, 1)
	}
}

// resolveEntities 通过一次模型调用把查询（含代词）解析为具体的片名/人名。
func (s *structuredSource) resolveEntities(ctx context.Context, query string, history []model.ConversationTurn) (*entityOutput, error) {
	prompt := fmt.Sprintf(entityPromptTemplate, query, formatRecentTurns(history))
	raw, err := s.llmClient.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, err
	}

	var out entityOutput
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		return nil, fmt.Errorf("实体解析输出无法解析: %w", err)
	}
	return &out, nil
}

// fetchMovies 逐标题检索并抓取完整详情，每部电影一条记录。
func (s *structuredSource) fetchMovies(ctx context.Context, titles []string, maxTitles int) ([]model.SourceRecord, error) {
	if len(titles) > maxTitles {
		titles = titles[:maxTitles]
	}

	records := make([]model.SourceRecord, 0, len(titles))
	for _, title := range titles {
		movieID, found, err := s.resolveMovieID(ctx, title)
		if err != nil {
			return nil, err
		}
		if !found {
			log.Infof("[StructuredSource] 未找到电影 '%s'", title)
			continue
		}

		detail, err := s.tmdbClient.GetMovieDetail(ctx, movieID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		records = append(records, s.movieRecord(detail))
	}
	return records, nil
}

// fetchRatings 只抓取评分字段，避免过度取数。
func (s *structuredSource) fetchRatings(ctx context.Context, titles []string) ([]model.SourceRecord, error) {
	if len(titles) > 1 {
		titles = titles[:1]
	}

	records := make([]model.SourceRecord, 0, 1)
	for _, title := range titles {
		movieID, found, err := s.resolveMovieID(ctx, title)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		detail, err := s.tmdbClient.GetMovieRating(ctx, movieID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}

		body := fmt.Sprintf("Title: %s\nRating: %.1f/10 (%d votes)\nRelease Date: %s",
			detail.Title, detail.VoteAverage, detail.VoteCount, orUnknown(detail.ReleaseDate))
		records = append(records, model.SourceRecord{
			SourceKind: model.SourceKindStructured,
			Title:      detail.Title,
			BodyText:   body,
			Citation: model.Citation{
				Text:  body,
				URL:   s.tmdbClient.MoviePageURL(detail.ID),
				Title: detail.Title + " - TMDb",
			},
		})
	}
	return records, nil
}

// fetchPerson 抓取人物传记与作品表。
func (s *structuredSource) fetchPerson(ctx context.Context, people []string) ([]model.SourceRecord, error) {
	if len(people) == 0 {
		return []model.SourceRecord{}, nil
	}

	results, err := s.tmdbClient.SearchPerson(ctx, people[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(results) == 0 {
		return []model.SourceRecord{}, nil
	}

	detail, err := s.tmdbClient.GetPersonDetail(ctx, results[0].ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return []model.SourceRecord{s.personRecord(detail)}, nil
}

// resolveMovieID 搜索标题并取首个命中的电影 ID。
func (s *structuredSource) resolveMovieID(ctx context.Context, title string) (int, bool, error) {
	results, err := s.tmdbClient.SearchMovie(ctx, title)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	return results[0].ID, true, nil
}

// movieRecord 把电影详情载荷格式化成一条可供模型引用的记录。
func (s *structuredSource) movieRecord(detail *tmdb.MovieDetail) model.SourceRecord {
	var directors []string
	for _, crew := range detail.Credits.Crew {
		if crew.Job == "Director" {
			directors = append(directors, crew.Name)
		}
	}

	var cast []string
	for i, member := range detail.Credits.Cast {
		if i >= 5 {
			break
		}
		cast = append(cast, member.Name)
	}

	var genres []string
	for _, g := range detail.Genres {
		genres = append(genres, g.Name)
	}

	var themes []string
	for _, kw := range detail.Keywords.Keywords {
		themes = append(themes, kw.Name)
	}

	lines := []string{
		"Title: " + detail.Title,
		"Overview: " + detail.Overview,
		"Director(s): " + strings.Join(directors, ", "),
		"Main Cast: " + strings.Join(cast, ", "),
		"Release Date: " + orUnknown(detail.ReleaseDate),
		"Genres: " + strings.Join(genres, ", "),
		"Themes/Keywords: " + strings.Join(themes, ", "),
		fmt.Sprintf("Rating: %.1f/10", detail.VoteAverage),
	}
	if providers, ok := detail.WatchProviders.Results["US"]; ok && len(providers.Flatrate) > 0 {
		var names []string
		for _, p := range providers.Flatrate {
			names = append(names, p.ProviderName)
		}
		lines = append(lines, "Available on: "+strings.Join(names, ", "))
	}

	return model.SourceRecord{
		SourceKind: model.SourceKindStructured,
		Title:      detail.Title,
		BodyText:   strings.Join(lines, "\n"),
		Citation: model.Citation{
			Text:  detail.Overview,
			URL:   s.tmdbClient.MoviePageURL(detail.ID),
			Title: detail.Title + " - TMDb",
		},
		Images: s.movieImages(detail),
	}
}

// movieImages 取海报与至多两张剧照。
func (s *structuredSource) movieImages(detail *tmdb.MovieDetail) []model.ImageData {
	var images []model.ImageData
	if url := s.tmdbClient.ImageURL(detail.PosterPath); url != "" {
		images = append(images, model.ImageData{
			URL:     url,
			Alt:     detail.Title + " poster",
			Caption: "Official poster for " + detail.Title,
		})
	}
	for _, backdrop := range detail.Images.Backdrops {
		if len(images) >= maxMovieImages {
			break
		}
		if url := s.tmdbClient.ImageURL(backdrop.FilePath); url != "" {
			images = append(images, model.ImageData{
				URL:     url,
				Alt:     detail.Title + " scene",
				Caption: "Scene from " + detail.Title,
			})
		}
	}
	return images
}

// personRecord 把人物详情载荷格式化成一条记录。
func (s *structuredSource) personRecord(detail *tmdb.PersonDetail) model.SourceRecord {
	var knownFor []string
	for i, credit := range detail.CombinedCredits.Cast {
		if i >= 10 {
			break
		}
		title := credit.Title
		if title == "" {
			title = credit.Name
		}
		if title != "" {
			knownFor = append(knownFor, title)
		}
	}
	var directed []string
	for _, credit := range detail.CombinedCredits.Crew {
		if credit.Job == "Director" && credit.Title != "" {
			directed = append(directed, credit.Title)
		}
	}

	lines := []string{
		"Name: " + detail.Name,
		"Known For: " + orUnknown(detail.KnownForDepartment),
		"Birthday: " + orUnknown(detail.Birthday),
		"Place of Birth: " + orUnknown(detail.PlaceOfBirth),
		"Biography: " + detail.Biography,
	}
	if len(directed) > 0 {
		lines = append(lines, "Directed: "+strings.Join(directed, ", "))
	}
	if len(knownFor) > 0 {
		lines = append(lines, "Appeared In: "+strings.Join(knownFor, ", "))
	}

	record := model.SourceRecord{
		SourceKind: model.SourceKindStructured,
		Title:      detail.Name,
		BodyText:   strings.Join(lines, "\n"),
		Citation: model.Citation{
			Text:  detail.Biography,
			URL:   s.tmdbClient.PersonPageURL(detail.ID),
			Title: detail.Name + " - TMDb",
		},
	}
	if url := s.tmdbClient.ImageURL(detail.ProfilePath); url != "" {
		record.Images = []model.ImageData{{
			URL:     url,
			Alt:     detail.Name + " photo",
			Caption: "Photo of " + detail.Name,
		}}
	}
	return record
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
