package keywords

import (
	"encoding/json"
	"fmt"
)

// ToJSON serializes a keyword set for storage as a JSON text column.
func ToJSON(k Keywords) (string, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("marshalling keywords: %w", err)
	}
	return string(data), nil
}

// FromJSON decodes a stored keyword snapshot. Empty or legacy-empty ("{}")
// values decode to the zero set; malformed JSON is an error the caller
// decides how to degrade on.
func FromJSON(data string) (Keywords, error) {
	if data == "" {
		return Keywords{}, nil
	}
	var k Keywords
	if err := json.Unmarshal([]byte(data), &k); err != nil {
		return Keywords{}, fmt.Errorf("unmarshalling keywords: %w", err)
	}
	return k, nil
}
