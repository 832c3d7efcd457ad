package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"propsync/identity"
	"propsync/models"
	"propsync/storage"
)

// Characteristics maintains attribute definitions and per-listing values.
type Characteristics struct{}

func NewCharacteristics() *Characteristics {
	return &Characteristics{}
}

// Replace deletes every value of the listing and writes the given set.
// tx should be a transaction-bound store.
func (c *Characteristics) Replace(ctx context.Context, tx *storage.Store, listingID int64, raw []models.RawCharacteristic) error {
	if err := tx.DeleteListingCharacteristics(ctx, listingID); err != nil {
		return fmt.Errorf("clear characteristics: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	for _, rc := range raw {
		key := strings.ToLower(identity.Fold(rc.Name))
		if seen[key] {
			continue
		}
		seen[key] = true

		def, err := c.ensureDefinition(ctx, tx, rc)
		if err != nil {
			return err
		}

		v := typedValue(def.Type, rc.Value)
		v.ListingID = listingID
		v.CharacteristicID = def.ID
		if err := tx.InsertListingCharacteristic(ctx, &v); err != nil {
			return fmt.Errorf("insert characteristic %q: %w", rc.Name, err)
		}
	}
	return nil
}

func (c *Characteristics) ensureDefinition(ctx context.Context, tx *storage.Store, rc models.RawCharacteristic) (*models.Characteristic, error) {
	explicit := declaredType(rc.Type)
	inferred := explicit
	if inferred == "" {
		inferred = InferCharacteristicType(rc.Value)
	}

	var unit *string
	if u := strings.TrimSpace(rc.Unit); u != "" {
		unit = &u
	}

	def, err := tx.EnsureCharacteristic(ctx, &models.Characteristic{Name: rc.Name, Type: inferred, Unit: unit})
	if err != nil {
		return nil, err
	}

	corrected := correctType(def.Type, inferred, explicit != "")
	unitChanged := unit != nil && (def.Unit == nil || *def.Unit != *unit)
	if corrected != def.Type || unitChanged {
		log.Debug().Str("characteristic", def.Name).Str("from", string(def.Type)).Str("to", string(corrected)).Msg("characteristic type corrected")
		def.Type = corrected
		if unit != nil {
			def.Unit = unit
		}
		if err := tx.UpdateCharacteristic(ctx, def); err != nil {
			return nil, fmt.Errorf("update characteristic %q: %w", def.Name, err)
		}
	}
	return def, nil
}

// correctType decides the stored type given new evidence. A declared type
// replaces the stored one; conflicting inferred evidence widens to text.
func correctType(stored, seen models.CharacteristicType, declared bool) models.CharacteristicType {
	if stored == seen {
		return stored
	}
	if declared {
		return seen
	}
	if stored == models.CharText {
		return stored
	}
	return models.CharText
}

func declaredType(t string) models.CharacteristicType {
	switch strings.ToLower(identity.Fold(strings.TrimSpace(t))) {
	case "boolean", "booleano", "bool", "si/no":
		return models.CharBoolean
	case "numeric", "numerico", "number", "numero", "int", "integer", "decimal":
		return models.CharNumeric
	case "text", "texto", "string", "cadena":
		return models.CharText
	}
	return ""
}

// InferCharacteristicType guesses the type of a raw value.
func InferCharacteristicType(raw json.RawMessage) models.CharacteristicType {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		// a bare name such as {"nombre": "Piscina"} is a flag
		return models.CharBoolean
	}
	switch t[0] {
	case 't', 'f':
		return models.CharBoolean
	case '"':
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return models.CharText
		}
		if _, ok := parseBoolWord(s); ok {
			return models.CharBoolean
		}
		if _, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64); err == nil {
			return models.CharNumeric
		}
		return models.CharText
	}
	if _, err := strconv.ParseFloat(string(t), 64); err == nil {
		return models.CharNumeric
	}
	return models.CharText
}

func typedValue(typ models.CharacteristicType, raw json.RawMessage) models.CharacteristicValue {
	var v models.CharacteristicValue
	text := rawText(raw)

	switch typ {
	case models.CharBoolean:
		b, ok := parseBoolWord(text)
		if text == "" {
			b, ok = true, true
		}
		if ok {
			v.ValueBool = &b
			return v
		}
	case models.CharNumeric:
		if f, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64); err == nil {
			v.ValueNumber = &f
			return v
		}
	}
	if text != "" {
		v.ValueText = &text
	}
	return v
}

func rawText(raw json.RawMessage) string {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(t, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(t)
}

func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(identity.Fold(strings.TrimSpace(s))) {
	case "true", "si", "yes", "x":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}
