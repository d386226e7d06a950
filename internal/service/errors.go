// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 管线错误分级：
//   - ErrSourceUnavailable 是单个数据源的传输/鉴权失败，由 Retriever 就地吸收降级；
//   - ErrRetrievalFailed 表示所有被调用的数据源都失败了，请求级失败；
//   - ErrSynthesisFailed 表示模型调用或输出解析失败，请求级失败。
//
// 「查无此实体/文章」不是错误，用空记录集表达。
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRetrievalFailed   = errors.New("retrieval failed: all sources unavailable")
	ErrSynthesisFailed   = errors.New("synthesis failed")
)
