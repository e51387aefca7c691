package service

import (
	"errors"

	"covid-parser/pkg/extractor"
	"covid-parser/pkg/parser"
	"covid-parser/pkg/source"
)

// ErrTransport marks a failed fetch of a domestic source. These are not
// turned into envelopes; New and Total return them to the caller.
var ErrTransport = errors.New("transport error")

const (
	msgUnsupportedDataType  = "Unsupported data_type"
	msgUnsupportedDateRange = "Unsupported date_range"
	msgUnrecognisedLocation = "Unrecognised location"
)

// messages are the generic replacements for masked results. Foreign lookups
// use their own wording.
type messages struct {
	seeLogs   string
	notLogged string
}

var (
	domesticMessages = messages{seeLogs: "See logs", notLogged: "Not logged, check exceptions"}
	foreignMessages  = messages{seeLogs: "Error: See logs", notLogged: "Error: not logged, level >= 2"}
)

// classify maps a pipeline error to the envelope it should produce.
func classify(err error) Envelope {
	switch {
	case errors.Is(err, source.ErrUnsupportedDataType):
		return failed(msgUnsupportedDataType, SeverityVisible)
	case errors.Is(err, extractor.ErrUnsupportedDateRange):
		return failed(msgUnsupportedDateRange, SeverityVisible)
	case errors.Is(err, source.ErrUnsupportedLocation):
		return failed(msgUnrecognisedLocation, SeverityVisible)
	case errors.Is(err, parser.ErrMalformedSource):
		return failed(err.Error(), SeverityLogged)
	default:
		return failed(err.Error(), SeverityUnlogged)
	}
}

func isTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
