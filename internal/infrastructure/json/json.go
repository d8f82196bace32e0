package json

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func Write(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func Read(r *http.Request, data any) error {
	maxBytes := 1_048_576
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, int64(maxBytes)))
	dec.DisallowUnknownFields()
	return dec.Decode(data)
}

// DecodeBody reads a success response. Bodies wrapped as {"data": ...} are
// unwrapped first.
func DecodeBody(body io.Reader, out any) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return errEmptyBody
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
