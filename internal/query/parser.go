package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseWhereJSON decodes a JSON condition as it arrives on a query string,
// for example {"year":{"$between":[2020,2023]},"$or":[{"homepage":true}]}.
// Numbers decode as json.Number so integer columns keep full precision.
// Returns nil, nil for an empty input.
func ParseWhereJSON(raw string) (Where, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var w map[string]any
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("where must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("where must contain a single JSON object")
	}
	if err := checkKeys(w); err != nil {
		return nil, err
	}
	return Where(w), nil
}

// checkKeys rejects column keys that are not identifiers before they reach
// the builder, so errors point at the request rather than the table.
func checkKeys(w map[string]any) error {
	for k, v := range w {
		if k == "$or" || k == "$and" {
			list, ok := v.([]any)
			if !ok {
				return fmt.Errorf("%s expects an array of objects", k)
			}
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return fmt.Errorf("%s expects an array of objects", k)
				}
				if err := checkKeys(m); err != nil {
					return err
				}
			}
			continue
		}
		if err := ValidateIdentifier(k); err != nil {
			return fmt.Errorf("invalid filter column: %w", err)
		}
	}
	return nil
}
