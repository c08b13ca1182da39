package models

import "encoding/json"

// Envelope is the response wrapper every Postly endpoint returns.
type Envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the data payload into dest. A missing payload leaves
// dest untouched.
func (e *Envelope) DecodeData(dest any) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, dest)
}

// ValidationErrors extracts data.errors when present.
func (e *Envelope) ValidationErrors() []FieldError {
	var payload struct {
		Errors []FieldError `json:"errors"`
	}
	if err := e.DecodeData(&payload); err != nil {
		return nil
	}
	return payload.Errors
}
