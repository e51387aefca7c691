package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedSource means an upstream payload no longer matches the layout
// the parser expects.
var ErrMalformedSource = errors.New("malformed source")

// Unavailable is the value recorded for a day whose figure cannot be derived.
const Unavailable = ""

// Record is one day of a series. Value is kept as published text.
type Record struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Series is ordered oldest to newest, as published.
type Series []Record

// Blank reports whether the record is a spacer row without a date label.
func (r Record) Blank() bool {
	return r.Date == "" || r.Date == " "
}

// DownloadClient fetches a URL and returns its body as text.
type DownloadClient interface {
	Download(ctx context.Context, url string) (string, error)
}

// cellString renders a JSON cell as text. Strings are unquoted, null becomes
// Unavailable, numbers keep their literal form.
func cellString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Unavailable
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// ParseCount reads a published count. Thousands separators are accepted.
func ParseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.Atoi(s)
}
