package graphile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// QueryNodeID is the id of the root Query object.
const QueryNodeID = "query"

// ErrInvalidNodeID is returned for ids that do not decode.
var ErrInvalidNodeID = errors.New("invalid nodeId")

// EncodeNodeID builds base64(["<PluralType>", pk...]).
func EncodeNodeID(typeName string, keys ...any) (string, error) {
	payload := make([]any, 0, len(keys)+1)
	payload = append(payload, typeName)
	payload = append(payload, keys...)

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding node id: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeNodeID reverses EncodeNodeID. Numbers decode as json.Number.
func DecodeNodeID(id string) (string, []any, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", nil, ErrInvalidNodeID
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload []any
	if err := dec.Decode(&payload); err != nil || len(payload) < 2 {
		return "", nil, ErrInvalidNodeID
	}

	typeName, ok := payload[0].(string)
	if !ok || typeName == "" {
		return "", nil, ErrInvalidNodeID
	}
	return typeName, payload[1:], nil
}
