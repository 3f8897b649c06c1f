package nlp

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// ErrNothingToSummarize is returned for text without any sentence.
var ErrNothingToSummarize = errors.New("nothing to summarize")

// FrequencySummarizer picks the highest-scoring sentences by normalized word frequency
// and returns them in document order.
type FrequencySummarizer struct {
	sentences int
}

// NewFrequencySummarizer builds a summarizer keeping up to n sentences (default 3).
func NewFrequencySummarizer(n int) *FrequencySummarizer {
	if n <= 0 {
		n = 3
	}
	return &FrequencySummarizer{sentences: n}
}

// Summarize implements the extractive summary.
func (s *FrequencySummarizer) Summarize(text string) (summary string, err error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToSummarize
	}
	defer func() {
		if r := recover(); r != nil {
			summary, err = "", errors.New("sentence segmentation panicked")
		}
	}()

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return "", err
	}
	sentences := make([]string, 0, len(doc.Sentences()))
	for _, sent := range doc.Sentences() {
		if t := strings.TrimSpace(sent.Text); t != "" {
			sentences = append(sentences, t)
		}
	}
	return pickSentences(sentences, s.sentences)
}

func pickSentences(sentences []string, n int) (string, error) {
	if len(sentences) == 0 {
		return "", ErrNothingToSummarize
	}
	if len(sentences) <= n {
		return strings.Join(sentences, " "), nil
	}

	freq := make(map[string]float64)
	var peak float64
	for _, sent := range sentences {
		for _, w := range contentWords(sent) {
			freq[w]++
			if freq[w] > peak {
				peak = freq[w]
			}
		}
	}
	if peak == 0 {
		return strings.Join(sentences[:n], " "), nil
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		words := contentWords(sent)
		var total float64
		for _, w := range words {
			total += freq[w] / peak
		}
		if len(words) > 0 {
			total /= float64(len(words))
		}
		ranked[i] = scored{index: i, score: total}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	chosen := ranked[:n]
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].index < chosen[j].index })
	out := make([]string, 0, n)
	for _, c := range chosen {
		out = append(out, sentences[c.index])
	}
	return strings.Join(out, " "), nil
}

func contentWords(sentence string) []string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !IsStopword(f) {
			words = append(words, f)
		}
	}
	return words
}
