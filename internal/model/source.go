package model

// SourceKind 标识一条检索记录来自哪类数据源。
type SourceKind string

const (
	SourceKindStructured SourceKind = "structured" // 电影数据库（TMDb）
	SourceKindTextual    SourceKind = "textual"    // 百科文章（Wikipedia）
)

// StructuredIntent 是结构化源的实体查询策略，闭集枚举。
// 模型的原始字符串输出必须经 ParseStructuredIntent 收敛到该集合。
type StructuredIntent string

const (
	IntentTitleLookup  StructuredIntent = "title_lookup"
	IntentPersonLookup StructuredIntent = "person_lookup"
	IntentRatingLookup StructuredIntent = "rating_lookup"
	IntentComparison   StructuredIntent = "comparison"
	IntentNone         StructuredIntent = "none"
)

// ParseStructuredIntent 将模型输出映射到枚举，未识别的值一律回退到 IntentNone，
// 绝不把原始字符串当类型用。
func ParseStructuredIntent(s string) StructuredIntent {
	switch StructuredIntent(s) {
	case IntentTitleLookup, IntentPersonLookup, IntentRatingLookup, IntentComparison:
		return StructuredIntent(s)
	default:
		return IntentNone
	}
}

// QueryPlan 是单次查询的检索计划，每次查询即时生成，从不持久化。
type QueryPlan struct {
	UseStructuredSource bool             `json:"use_structured_source"`
	StructuredIntent    StructuredIntent `json:"structured_intent"`
	UseTextualSource    bool             `json:"use_textual_source"`
	TextualKeywords     []string         `json:"textual_keywords"`
}

// SourceRecord 是一次数据源 API 调用产出的归一化记录，不可变，
// 仅在本轮被 AnswerSynthesizer 消费一次。
type SourceRecord struct {
	SourceKind SourceKind
	Title      string
	BodyText   string
	Citation   Citation
	Images     []ImageData
}
