package fetch

import (
	"encoding/json"
	"fmt"
)

// Outcome is the result of fetching one URL. Errors are carried as data so a
// single failed request never aborts a bulk operation; the consumer decides
// what a failure means for its stage.
type Outcome struct {
	URL   string
	Value json.RawMessage
	Err   error
}

// OK reports whether the fetch produced a usable value.
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Decode unmarshals the outcome value into v. It returns the fetch error if
// the outcome is an error outcome.
func (o *Outcome) Decode(v any) error {
	if o.Err != nil {
		return o.Err
	}
	return json.Unmarshal(o.Value, v)
}

// StatusError is returned when the server replies with a non-2xx status.
// It is retried like a transport error and, on retry exhaustion, surfaced as
// the outcome's error.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Code, e.URL)
}

// textBody wraps a non-JSON response body so every outcome value is JSON.
type textBody struct {
	Text string `json:"text"`
}
