package service

import (
	"encoding/json"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Severity tells the dispatch layer what to do with a failed result.
type Severity int

const (
	// SeverityVisible results go back to the caller unchanged.
	SeverityVisible Severity = 0
	// SeverityLogged results are logged and replaced with a generic message.
	SeverityLogged Severity = 1
	// SeverityUnlogged results are replaced without logging. Anything the
	// classifier does not recognise lands here.
	SeverityUnlogged Severity = 2
)

// Envelope is the uniform result of New and Total. Content holds a JSON
// array for New, a decimal integer for Total, or a short message on error.
type Envelope struct {
	Status     string
	Content    string
	Classified Severity
}

func ok(content string) Envelope {
	return Envelope{Status: StatusOK, Content: content}
}

func failed(msg string, sev Severity) Envelope {
	return Envelope{Status: StatusError, Content: msg, Classified: sev}
}

// OK reports whether the envelope carries data.
func (e Envelope) OK() bool {
	return e.Status == StatusOK
}

type envelopeWire struct {
	Status     string          `json:"status"`
	Content    json.RawMessage `json:"content"`
	Classified int             `json:"classified"`
}

// MarshalJSON embeds successful content as JSON and error messages as strings.
func (e Envelope) MarshalJSON() ([]byte, error) {
	content := json.RawMessage(e.Content)
	if !e.OK() || !json.Valid(content) {
		b, err := json.Marshal(e.Content)
		if err != nil {
			return nil, err
		}
		content = b
	}
	return json.Marshal(envelopeWire{
		Status:     e.Status,
		Content:    content,
		Classified: int(e.Classified),
	})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Status = w.Status
	e.Classified = Severity(w.Classified)
	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil && w.Status != StatusOK {
		e.Content = s
	} else {
		e.Content = string(w.Content)
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON for YAML output.
func (e Envelope) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{
		"status":     e.Status,
		"content":    e.Content,
		"classified": int(e.Classified),
	}
	if e.OK() {
		var v interface{}
		if err := json.Unmarshal([]byte(e.Content), &v); err == nil {
			out["content"] = v
		}
	}
	return out, nil
}
