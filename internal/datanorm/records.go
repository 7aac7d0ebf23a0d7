package datanorm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseRecords decodes a record container. A JSON array yields its
// elements; any other JSON value is treated as a single record. Numbers are
// kept as json.Number so large ids survive intact.
func ParseRecords(data []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode records: trailing data after JSON value")
	}

	if list, ok := v.([]any); ok {
		return list, nil
	}
	return []any{v}, nil
}
