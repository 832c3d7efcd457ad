package source

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"propsync/models"
)

var ErrUnknownShape = errors.New("unrecognized payload shape")

// envelopeKeys are the wrapper keys the API has been seen to use, in the
// order they are tried.
var envelopeKeys = []string{"data", "inmuebles", "items", "results"}

// ExtractPropertyData pulls the listing objects out of an API payload. It
// accepts a bare array, an envelope object holding the array under one of
// envelopeKeys (possibly nested once), or a single listing object. Each
// element is decoded on its own; one that fails carries DecodeErr instead
// of failing the payload.
func ExtractPropertyData(payload []byte) ([]models.RawListing, error) {
	return extract(bytes.TrimSpace(payload), 0)
}

func extract(payload []byte, depth int) ([]models.RawListing, error) {
	if len(payload) == 0 {
		return nil, ErrUnknownShape
	}

	switch payload[0] {
	case '[':
		return decodeElements(payload)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		for _, key := range envelopeKeys {
			inner, ok := obj[key]
			if !ok {
				continue
			}
			inner = bytes.TrimSpace(inner)
			if len(inner) > 0 && (inner[0] == '[' || (inner[0] == '{' && depth == 0)) {
				return extract(inner, depth+1)
			}
		}
		if _, ok := obj["ref"]; ok {
			return decodeElements(append(append([]byte{'['}, payload...), ']'))
		}
	}
	return nil, ErrUnknownShape
}

func decodeElements(array []byte) ([]models.RawListing, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(array, &items); err != nil {
		return nil, fmt.Errorf("decode listing array: %w", err)
	}

	listings := make([]models.RawListing, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &listings[i]); err != nil {
			listings[i] = models.RawListing{DecodeErr: fmt.Errorf("element %d: %w", i, err)}
		}
	}
	return listings, nil
}
