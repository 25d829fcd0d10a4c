package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenMeasure counts model tokens with a tiktoken encoding. It satisfies
// the memory package's Measure interface, letting digest budgets be
// expressed in tokens instead of characters. The encoding is initialized
// lazily since tiktoken may load data on first use; if initialization fails,
// counting falls back to the usual len/4 estimate.
type TokenMeasure struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTokenMeasure creates a measure for the given tiktoken encoding name;
// empty means cl100k_base.
func NewTokenMeasure(encoding string) *TokenMeasure {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TokenMeasure{encoding: encoding}
}

func (m *TokenMeasure) init() error {
	m.once.Do(func() {
		m.enc, m.initErr = tiktoken.GetEncoding(m.encoding)
	})
	return m.initErr
}

// Count returns the token count of text.
func (m *TokenMeasure) Count(text string) int {
	if err := m.init(); err != nil {
		n := len(text) / 4
		if n == 0 && len(text) > 0 {
			n = 1
		}
		return n
	}
	return len(m.enc.Encode(text, nil, nil))
}
