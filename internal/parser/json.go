package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const (
	DefaultOpenTag  = "<json>"
	DefaultCloseTag = "</json>"

	jsonPreviewLength = 800
)

// JSONStrategy is one way of locating a JSON value inside free-form text.
// Strategies are pure: they never fail loudly, they only report whether they found something.
type JSONStrategy interface {
	ExtractJSON(text string) (model.ExtractedJSON, bool)
}

// DefaultJSONStrategies is the tagged-first, scan-second chain.
func DefaultJSONStrategies() []JSONStrategy {
	return []JSONStrategy{
		TaggedJSON{Open: DefaultOpenTag, Close: DefaultCloseTag},
		BracketScan{},
	}
}

// ExtractJSON returns the first JSON value found by the strategies, tried in order.
// With no strategies given, DefaultJSONStrategies is used.
func ExtractJSON(text string, strategies ...JSONStrategy) (model.ExtractedJSON, error) {
	if len(strategies) == 0 {
		strategies = DefaultJSONStrategies()
	}
	for _, s := range strategies {
		if found, ok := s.ExtractJSON(text); ok {
			return found, nil
		}
	}
	return model.ExtractedJSON{}, fmt.Errorf("%w in agent output\n\nPreview:\n%s", model.ErrNoJSONFound, model.Preview(text, jsonPreviewLength))
}

// TaggedJSON takes the payload between a literal opening and closing tag.
type TaggedJSON struct {
	Open  string
	Close string
}

func (t TaggedJSON) ExtractJSON(text string) (model.ExtractedJSON, bool) {
	if t.Open == "" || t.Close == "" {
		return model.ExtractedJSON{}, false
	}
	start := strings.Index(text, t.Open)
	if start == -1 {
		return model.ExtractedJSON{}, false
	}
	bodyStart := start + len(t.Open)
	end := strings.Index(text[bodyStart:], t.Close)
	if end == -1 {
		return model.ExtractedJSON{}, false
	}
	body := text[bodyStart : bodyStart+end]
	payload := strings.TrimSpace(body)
	v, ok := parseJSON(payload)
	if !ok {
		return model.ExtractedJSON{}, false
	}
	return model.ExtractedJSON{
		Value:  v,
		Raw:    json.RawMessage(payload),
		Source: model.SourceTagged,
		Offset: bodyStart + strings.Index(body, payload),
	}, true
}

// BracketScan tries every '{' and '[' in position order. For each start it
// parses the whole suffix, then the shortest bracket-balanced prefix.
type BracketScan struct{}

func (BracketScan) ExtractJSON(text string) (model.ExtractedJSON, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		suffix := text[i:]
		if v, ok := parseJSON(suffix); ok {
			return model.ExtractedJSON{
				Value:  v,
				Raw:    json.RawMessage(strings.TrimSpace(suffix)),
				Source: model.SourceScan,
				Offset: i,
			}, true
		}
		candidate, ok := balancedPrefix(suffix)
		if !ok {
			continue
		}
		if v, ok := parseJSON(candidate); ok {
			return model.ExtractedJSON{
				Value:  v,
				Raw:    json.RawMessage(candidate),
				Source: model.SourceScan,
				Offset: i,
			}, true
		}
	}
	return model.ExtractedJSON{}, false
}

// balancedPrefix returns the shortest prefix of s whose object and array
// depths both return to zero on a closing bracket. Brackets inside string
// literals are ignored. It is safe to walk bytes because the delimiters are
// ASCII and never occur inside a multi-byte UTF-8 sequence.
func balancedPrefix(s string) (string, bool) {
	var depthObj, depthArr int
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depthObj++
		case '}':
			depthObj--
		case '[':
			depthArr++
		case ']':
			depthArr--
		}

		// A stray closer can never start a valid value.
		if depthObj < 0 || depthArr < 0 {
			return "", false
		}
		if depthObj == 0 && depthArr == 0 && (c == '}' || c == ']') {
			return s[:i+1], true
		}
	}
	return "", false
}

// parseJSON accepts s only if it is exactly one JSON value, optionally
// surrounded by whitespace.
func parseJSON(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}
