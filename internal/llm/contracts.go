package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/joseph-ayodele/docflow/internal/record"
)

// ErrMalformedResponse is returned when a provider answers 2xx but the envelope lacks a reply.
var ErrMalformedResponse = errors.New("llm: malformed provider response")

// NotJSONMarker is the error carried by a Fallback.
const NotJSONMarker = "Response was not in JSON format"

// Completer sends one system+user exchange to a chat model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Structurer turns raw OCR text into a record.
type Structurer interface {
	Structure(ctx context.Context, text string) (Result, error)
}

// Fallback is returned instead of an error when the model never produced parseable JSON.
type Fallback struct {
	RawText        string `json:"raw_text"`
	StructuredData string `json:"structured_data"`
	Error          string `json:"error"`
}

// Result holds either a parsed record or a Fallback.
type Result struct {
	Record   *record.Record
	Fallback *Fallback
	Attempts int
}

func (r Result) OK() bool { return r.Fallback == nil && r.Record != nil }

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Fallback != nil {
		return json.Marshal(r.Fallback)
	}
	return r.Record.MarshalJSON()
}
