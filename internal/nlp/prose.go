package nlp

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

// topicLabels are the entity classes kept as topics.
var topicLabels = map[string]struct{}{
	"GPE":          {},
	"PERSON":       {},
	"ORG":          {},
	"ORGANIZATION": {},
}

// Prose tags and recognizes entities in English text with prose's bundled models.
type Prose struct {
	maxKeywords int
	logger      *zap.Logger
}

// NewProse builds a Prose extractor. maxKeywords <= 0 uses MaxKeywords.
func NewProse(maxKeywords int, logger *zap.Logger) *Prose {
	if maxKeywords <= 0 {
		maxKeywords = MaxKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prose{maxKeywords: maxKeywords, logger: logger.Named("nlp")}
}

// Keywords returns noun and adjective tokens in first-seen order.
func (p *Prose) Keywords(text, lang string) (keywords []string) {
	if !supported(text, lang) {
		return nil
	}
	defer p.recover("keywords", &keywords)

	doc, err := prose.NewDocument(text, prose.WithExtraction(false))
	if err != nil {
		p.logger.Debug("keyword tagging failed", zap.Error(err))
		return nil
	}
	return selectKeywords(doc.Tokens(), p.maxKeywords)
}

// Topics returns GPE, PERSON and organization entities, sorted.
func (p *Prose) Topics(text, lang string) (topics []string) {
	if !supported(text, lang) {
		return nil
	}
	defer p.recover("topics", &topics)

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		p.logger.Debug("entity recognition failed", zap.Error(err))
		return nil
	}
	return selectTopics(doc.Entities())
}

func (p *Prose) recover(stage string, out *[]string) {
	if r := recover(); r != nil {
		p.logger.Warn("nlp stage panicked", zap.String("stage", stage), zap.Any("panic", r))
		*out = nil
	}
}

func supported(text, lang string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return lang == "" || strings.EqualFold(lang, "en")
}

func selectKeywords(tokens []prose.Token, limit int) []string {
	seen := make(map[string]struct{}, limit)
	keywords := make([]string, 0, limit)
	for _, tok := range tokens {
		if len(keywords) >= limit {
			break
		}
		if !strings.HasPrefix(tok.Tag, "NN") && !strings.HasPrefix(tok.Tag, "JJ") {
			continue
		}
		word := strings.ToLower(tok.Text)
		if len([]rune(word)) <= 2 || !isAlphanumeric(word) || IsStopword(word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

func selectTopics(entities []prose.Entity) []string {
	seen := make(map[string]struct{})
	topics := make([]string, 0, len(entities))
	for _, ent := range entities {
		if _, ok := topicLabels[ent.Label]; !ok {
			continue
		}
		name := strings.Join(strings.Fields(ent.Text), " ")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
