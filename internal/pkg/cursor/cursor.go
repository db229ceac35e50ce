// Package cursor implements the opaque keyset cursor used to paginate the
// cluster feed in stable importanceScore/lastSignalAt/id order.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is the keyset position of the last row returned by a feed page,
// matching the compound ordering importanceScore DESC, lastSignalAt DESC,
// id DESC.
type Cursor struct {
	ImportanceScore int64     `json:"importanceScore"`
	LastSignalAt    time.Time `json:"lastSignalAt"`
	ID              int64     `json:"id"`
}

// Encode serializes c as URL-safe base64 JSON.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses an opaque cursor token produced by Encode.
func Decode(token string) (Cursor, error) {
	var c Cursor
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("decode cursor: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c, nil
}
