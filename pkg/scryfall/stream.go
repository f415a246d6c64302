package scryfall

import (
	"encoding/json"
	"fmt"
	"io"
)

// CardStream decodes a bulk dataset incrementally. The dataset is one JSON
// array of card objects, which can run to gigabytes, so it is never held in
// memory whole.
type CardStream struct {
	body    io.ReadCloser
	decoder *json.Decoder
}

// NewCardStream wraps the reader and consumes the opening array token.
func NewCardStream(body io.ReadCloser) (*CardStream, error) {
	decoder := json.NewDecoder(body)

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset start: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("dataset is not a JSON array, got token %v", token)
	}

	return &CardStream{
		body:    body,
		decoder: decoder,
	}, nil
}

// Next decodes the next card. It returns io.EOF once the array is exhausted.
func (s *CardStream) Next() (*Card, error) {
	if !s.decoder.More() {
		// consume the closing array token
		if _, err := s.decoder.Token(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read dataset end: %w", err)
		}
		return nil, io.EOF
	}

	var card Card
	if err := s.decoder.Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	return &card, nil
}

// Close closes the underlying response body.
func (s *CardStream) Close() error {
	return s.body.Close()
}
