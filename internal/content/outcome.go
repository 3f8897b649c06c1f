package content

import (
	"errors"
	"strings"
)

// OutcomeKind tags the result of one pipeline stage.
type OutcomeKind int

// Stage outcome tags.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeEmpty
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is an explicit tagged result: Success(data) | Empty | Failed(reason).
type Outcome struct {
	Kind       OutcomeKind
	Extraction Extraction
	Reason     error
}

// Success wraps a usable extraction. An extraction without text is reported as Empty.
func Success(e Extraction) Outcome {
	if strings.TrimSpace(e.Text) == "" {
		return Empty("no text extracted")
	}
	return Outcome{Kind: OutcomeSuccess, Extraction: e}
}

// Empty reports that a stage ran but produced nothing usable.
func Empty(reason string) Outcome {
	return Outcome{Kind: OutcomeEmpty, Reason: errors.New(reason)}
}

// Failed reports that a stage could not run to completion.
func Failed(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{Kind: OutcomeFailed, Reason: err}
}

// OK reports whether the outcome carries usable data.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}
