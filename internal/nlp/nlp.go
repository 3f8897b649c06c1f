// Package nlp derives keywords, topics and summaries from normalized text.
package nlp

// MaxKeywords caps the keyword set of a record.
const MaxKeywords = 10

// KeywordExtractor returns a bounded, deduplicated keyword set.
type KeywordExtractor interface {
	Keywords(text, lang string) []string
}

// TopicExtractor returns named entities of interest.
type TopicExtractor interface {
	Topics(text, lang string) []string
}

// Extractor is the combined keyword and topic contract the pipeline consumes.
type Extractor interface {
	KeywordExtractor
	TopicExtractor
}

// Noop extracts nothing. It is the choice when no model is configured.
type Noop struct{}

// Keywords implements KeywordExtractor.
func (Noop) Keywords(string, string) []string { return nil }

// Topics implements TopicExtractor.
func (Noop) Topics(string, string) []string { return nil }
