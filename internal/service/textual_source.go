package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/wikipedia"
)

// 每个关键词的检索候选数。
const searchResultLimit = 3

// TextualSource 是百科文本数据源的适配器：逐关键词检索，取首个命中的文章，
// 多个关键词命中同一篇文章时按规范标题去重。
type TextualSource interface {
	// Fetch 无匹配文章时返回空切片；传输失败时返回包装了
	// ErrSourceUnavailable 的错误。
	Fetch(ctx context.Context, keywords []string) ([]model.SourceRecord, error)
}

type textualSource struct {
	wikiClient *wikipedia.Client
}

// NewTextualSource 创建一个新的 TextualSource 实例。
func NewTextualSource(wikiClient *wikipedia.Client) TextualSource {
	return &textualSource{wikiClient: wikiClient}
}

// Fetch 按关键词顺序检索。每个关键词只取检索结果的首个命中（bound cost），
// 正文抓取窗口是可调常量（config.Chat.ExtractSentences）。
func (s *textualSource) Fetch(ctx context.Context, keywords []string) ([]model.SourceRecord, error) {
	if len(keywords) == 0 {
		return []model.SourceRecord{}, nil
	}

	sentences := config.Conf.Chat.ExtractSentences
	seenTitles := make(map[string]struct{})
	var records []model.SourceRecord

	for _, keyword := range keywords {
		results, err := s.wikiClient.Search(ctx, keyword, searchResultLimit)
		if err != nil {
			// 已有部分记录时降级返回已取到的部分
			if len(records) > 0 {
				log.Warnf("[TextualSource] 关键词 '%s' 检索失败, 返回已取得的 %d 条记录: %v", keyword, len(records), err)
				return records, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if len(results) == 0 {
			continue
		}

		// 只取首个命中，控制每个关键词的抓取成本
		top := results[0]
		if _, seen := seenTitles[strings.ToLower(top.Title)]; seen {
			continue
		}

		article, err := s.wikiClient.FetchArticle(ctx, top.Title, sentences)
		if err != nil {
			if len(records) > 0 {
				log.Warnf("[TextualSource] 文章 '%s' 抓取失败, 返回已取得的 %d 条记录: %v", top.Title, len(records), err)
				return records, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if article == nil || article.Extract == "" {
			continue
		}

		// 以抓取到的规范标题去重（检索标题与文章标题可能经过重定向）
		canonical := strings.ToLower(article.Title)
		if _, seen := seenTitles[canonical]; seen {
			continue
		}
		seenTitles[strings.ToLower(top.Title)] = struct{}{}
		seenTitles[canonical] = struct{}{}

		records = append(records, s.articleRecord(article))
	}

	if records == nil {
		records = []model.SourceRecord{}
	}
	log.Infof("[TextualSource] 关键词 %v 命中 %d 篇文章", keywords, len(records))
	return records, nil
}

// articleRecord 把一篇文章转换为一条归一化记录。
func (s *textualSource) articleRecord(article *wikipedia.Article) model.SourceRecord {
	record := model.SourceRecord{
		SourceKind: model.SourceKindTextual,
		Title:      article.Title,
		BodyText:   article.Extract,
		Citation: model.Citation{
			Text:  snippet(article.Extract, 300),
			URL:   article.FullURL,
			Title: article.Title + " - Wikipedia",
		},
	}
	if article.Thumbnail.Source != "" {
		record.Images = []model.ImageData{{
			URL:     article.Thumbnail.Source,
			Alt:     article.Title + " image",
			Caption: "Image from Wikipedia article: " + article.Title,
		}}
	}
	return record
}

// snippet 截取引用展示用的摘录片段。
func snippet(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}
