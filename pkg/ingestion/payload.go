package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/jeremywohl/flatten"
	"gocloud.dev/pubsub"
)

const (
	MetadataContentType = "content-type"
	ContentTypeCBOR     = "application/cbor"
	ContentTypeJSON     = "application/json"
)

// DecodePayload decodes the message body as JSON, or CBOR when the message
// says so, and flattens nested objects into dot separated keys.
func DecodePayload(msg *pubsub.Message) (map[string]interface{}, error) {
	var raw interface{}
	if strings.EqualFold(msg.Metadata[MetadataContentType], ContentTypeCBOR) {
		if err := cbor.Unmarshal(msg.Body, &raw); err != nil {
			return nil, fmt.Errorf("decode cbor: %w", err)
		}
	} else {
		if err := json.Unmarshal(msg.Body, &raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}

	nested, ok := normalize(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("payload is %T, not an object", raw)
	}
	return flatten.Flatten(nested, "", flatten.DotStyle)
}

// normalize turns the interface keyed maps produced by the CBOR decoder into
// string keyed ones.
func normalize(v interface{}) interface{} {
	switch m := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]interface{}:
		for k, val := range m {
			m[k] = normalize(val)
		}
		return m
	case []interface{}:
		for i, val := range m {
			m[i] = normalize(val)
		}
		return m
	}
	return v
}

// StringAt reads the value at a flattened path as a string. Numbers are
// accepted for ids that were published unquoted.
func StringAt(payload map[string]interface{}, path string) (string, bool) {
	switch v := payload[path].(type) {
	case string:
		return v, v != ""
	case float64, int64, uint64, int:
		return fmt.Sprint(v), true
	}
	return "", false
}
