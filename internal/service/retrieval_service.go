package service

import (
	"context"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/log"
)

// RetrievalService 按计划并行调用数据源适配器并汇集记录。
type RetrievalService interface {
	// Retrieve 容忍单个数据源失败（吸收并记日志，请求降级继续）；
	// 只有所有被调用的数据源都失败时才返回 ErrRetrievalFailed。
	// 返回序列的顺序是确定的：结构化记录在前、文本记录在后，组内保持
	// 适配器返回顺序，与两个分支的完成先后无关——这个顺序就是下游的
	// 引用编号顺序。
	Retrieve(ctx context.Context, plan model.QueryPlan, query string, history []model.ConversationTurn) ([]model.SourceRecord, error)
}

type retrievalService struct {
	structured    StructuredSource
	textual       TextualSource
	sourceTimeout time.Duration
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
// sourceTimeout 是单个适配器的独立超时，超时与传输失败同等对待。
func NewRetrievalService(structured StructuredSource, textual TextualSource, sourceTimeout time.Duration) RetrievalService {
	return &retrievalService{
		structured:    structured,
		textual:       textual,
		sourceTimeout: sourceTimeout,
	}
}

// branchResult 是单个数据源分支的产出。
type branchResult struct {
	records []model.SourceRecord
	err     error
}

// Retrieve 对启用的适配器做 fan-out/fan-in。
func (s *retrievalService) Retrieve(ctx context.Context, plan model.QueryPlan, query string, history []model.ConversationTurn) ([]model.SourceRecord, error) {
	var structuredCh, textualCh chan branchResult

	// fan-out：两个分支各带独立超时，互不等待；一个分支的取消不影响另一个
	if plan.UseStructuredSource {
		structuredCh = make(chan branchResult, 1)
		go func() {
			branchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
			defer cancel()
			records, err := s.structured.Fetch(branchCtx, plan.StructuredIntent, query, history)
			structuredCh <- branchResult{records: records, err: err}
		}()
	}
	if plan.UseTextualSource {
		textualCh = make(chan branchResult, 1)
		go func() {
			branchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
			defer cancel()
			records, err := s.textual.Fetch(branchCtx, plan.TextualKeywords)
			textualCh <- branchResult{records: records, err: err}
		}()
	}

	// fan-in：固定先结构化后文本的合并顺序，保证引用编号稳定
	invoked := 0
	failed := 0
	var merged []model.SourceRecord

	if structuredCh != nil {
		invoked++
		res := <-structuredCh
		if res.err != nil {
			failed++
			log.Warnf("[RetrievalService] 结构化源失败, 降级继续: %v", res.err)
		} else {
			merged = append(merged, res.records...)
		}
	}
	if textualCh != nil {
		invoked++
		res := <-textualCh
		if res.err != nil {
			failed++
			log.Warnf("[RetrievalService] 文本源失败, 降级继续: %v", res.err)
		} else {
			merged = append(merged, res.records...)
		}
	}

	if invoked > 0 && failed == invoked {
		return nil, ErrRetrievalFailed
	}

	if merged == nil {
		merged = []model.SourceRecord{}
	}
	log.Infof("[RetrievalService] 检索完成, 共 %d 条记录 (调用 %d 个源, %d 个失败)", len(merged), invoked, failed)
	return merged, nil
}
