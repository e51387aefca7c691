package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"covid-parser/pkg/source"
)

var (
	anchorPatterns sync.Map // source.AnchorPair -> *regexp.Regexp
	trailingComma  = regexp.MustCompile(`,\s*\]$`)
)

// anchorPattern matches the text between the last opening anchor that is
// followed by a closing anchor and the last closing anchor in the document.
func anchorPattern(pair source.AnchorPair) *regexp.Regexp {
	if re, ok := anchorPatterns.Load(pair); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?s).+` + regexp.QuoteMeta(pair.Open) + `(.+)` + regexp.QuoteMeta(pair.Close) + `.+`)
	actual, _ := anchorPatterns.LoadOrStore(pair, re)
	return actual.(*regexp.Regexp)
}

// ParseEmbedded extracts a JS array literal placed between two anchors in a
// page, e.g. `const deaths_new = ['1','2',];`. Foreign pages carry no date
// labels, so each record is labelled with its 1-based day number.
func ParseEmbedded(payload string, pair source.AnchorPair) (Series, error) {
	if pair.Open == "" || pair.Close == "" {
		return nil, fmt.Errorf("%w: empty anchor", ErrMalformedSource)
	}

	m := anchorPattern(pair).FindStringSubmatch(payload)
	if m == nil {
		return nil, fmt.Errorf("%w: anchors %q..%q not found", ErrMalformedSource, pair.Open, pair.Close)
	}

	literal, err := normalizeLiteral(m[1])
	if err != nil {
		return nil, err
	}

	var cells []json.RawMessage
	if err := json.Unmarshal([]byte(literal), &cells); err != nil {
		return nil, fmt.Errorf("%w: decode array after %q: %v", ErrMalformedSource, pair.Open, err)
	}

	series := make(Series, len(cells))
	for i, cell := range cells {
		series[i] = Record{Date: strconv.Itoa(i + 1), Value: cellString(cell)}
	}
	return series, nil
}

// normalizeLiteral converts a JS array literal into JSON: single quotes
// become double quotes and one trailing comma before the closing bracket is
// dropped.
func normalizeLiteral(fragment string) (string, error) {
	s := strings.TrimSpace(fragment)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", fmt.Errorf("%w: fragment is not an array literal", ErrMalformedSource)
	}
	s = strings.ReplaceAll(s, "'", `"`)
	if loc := trailingComma.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + "]"
	}
	return s, nil
}
