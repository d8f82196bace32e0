package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IDString renders an opaque identifier that arrived as a JSON string or
// number. Other values yield "".
func IDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return ""
}

// opaqueID decodes a string or numeric identifier. Numbers keep their exact
// literal text.
type opaqueID string

func (o *opaqueID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch v.(type) {
	case nil, string, json.Number:
		*o = opaqueID(IDString(v))
		return nil
	default:
		return fmt.Errorf("identifier must be a string or number, got %s", data)
	}
}
