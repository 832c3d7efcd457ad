package models

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var ErrMissingRef = errors.New("listing has no ref")

var numberRegex = regexp.MustCompile(`-?[0-9][0-9.,]*`)

// RawListing is one listing object as returned by the external API. Only the
// allow-listed keys are decoded into typed fields; anything else lands in
// RawExtra untouched.
type RawListing struct {
	Ref              int64
	SyncCode         string
	City             string
	Neighborhood     string
	PropertyType     string
	Use              string
	Status           string
	Area             float64
	AreaBuilt        float64
	AreaPrivate      float64
	AreaLot          float64
	Bedrooms         int
	Bathrooms        int
	Garages          int
	Stratum          int
	SalePrice        float64
	RentPrice        float64
	AdminFee         float64
	Title            string
	Description      string
	ShortDescription string
	Address          string
	Latitude         *string
	Longitude        *string
	Images           []RawImage
	Characteristics  []RawCharacteristic
	RawExtra         map[string]json.RawMessage

	// HasImages and HasCharacteristics distinguish an empty list, which
	// clears stored rows, from an absent key, which leaves them alone.
	HasImages          bool
	HasCharacteristics bool

	// DecodeErr is set when the element could not be decoded at all.
	DecodeErr error
}

type RawImage struct {
	URL       string `json:"url"`
	Order     *int   `json:"orden,omitempty"`
	IsPrimary bool   `json:"es_principal,omitempty"`
}

type RawCharacteristic struct {
	Name  string          `json:"nombre"`
	Value json.RawMessage `json:"valor"`
	Type  string          `json:"tipo,omitempty"`
	Unit  string          `json:"unidad,omitempty"`
}

// Valid reports whether the listing can be reconciled at all.
func (r *RawListing) Valid() error {
	if r.DecodeErr != nil {
		return r.DecodeErr
	}
	if r.Ref <= 0 {
		return ErrMissingRef
	}
	return nil
}

func (r *RawListing) Catalogs() CatalogValues {
	return CatalogValues{
		City:         r.City,
		Neighborhood: r.Neighborhood,
		PropertyType: r.PropertyType,
		Use:          r.Use,
		Status:       r.Status,
	}
}

type fieldDecoder func(r *RawListing, raw json.RawMessage) error

var rawFields = map[string]fieldDecoder{
	"ref":                   func(r *RawListing, v json.RawMessage) error { return decodeRef(v, &r.Ref) },
	"codigo_sincronizacion": func(r *RawListing, v json.RawMessage) error { r.SyncCode = looseString(v); return nil },
	"ciudad":                func(r *RawListing, v json.RawMessage) error { r.City = looseString(v); return nil },
	"barrio":                func(r *RawListing, v json.RawMessage) error { r.Neighborhood = looseString(v); return nil },
	"tipo_inmueble":         func(r *RawListing, v json.RawMessage) error { r.PropertyType = looseString(v); return nil },
	"uso":                   func(r *RawListing, v json.RawMessage) error { r.Use = looseString(v); return nil },
	"estado_actual":         func(r *RawListing, v json.RawMessage) error { r.Status = looseString(v); return nil },
	"area":                  func(r *RawListing, v json.RawMessage) error { r.Area = looseFloat(v); return nil },
	"area_construida":       func(r *RawListing, v json.RawMessage) error { r.AreaBuilt = looseFloat(v); return nil },
	"area_privada":          func(r *RawListing, v json.RawMessage) error { r.AreaPrivate = looseFloat(v); return nil },
	"area_lote":             func(r *RawListing, v json.RawMessage) error { r.AreaLot = looseFloat(v); return nil },
	"habitaciones":          func(r *RawListing, v json.RawMessage) error { r.Bedrooms = int(looseFloat(v)); return nil },
	"banos":                 func(r *RawListing, v json.RawMessage) error { r.Bathrooms = int(looseFloat(v)); return nil },
	"garajes":               func(r *RawListing, v json.RawMessage) error { r.Garages = int(looseFloat(v)); return nil },
	"estrato":               func(r *RawListing, v json.RawMessage) error { r.Stratum = int(looseFloat(v)); return nil },
	"precio_venta":          func(r *RawListing, v json.RawMessage) error { r.SalePrice = looseFloat(v); return nil },
	"precio_canon":          func(r *RawListing, v json.RawMessage) error { r.RentPrice = looseFloat(v); return nil },
	"precio_administracion": func(r *RawListing, v json.RawMessage) error { r.AdminFee = looseFloat(v); return nil },
	"titulo":                func(r *RawListing, v json.RawMessage) error { r.Title = looseString(v); return nil },
	"descripcion":           func(r *RawListing, v json.RawMessage) error { r.Description = looseString(v); return nil },
	"descripcion_corta":     func(r *RawListing, v json.RawMessage) error { r.ShortDescription = looseString(v); return nil },
	"direccion":             func(r *RawListing, v json.RawMessage) error { r.Address = looseString(v); return nil },
	"latitud":               func(r *RawListing, v json.RawMessage) error { r.Latitude = looseCoord(v); return nil },
	"longitud":              func(r *RawListing, v json.RawMessage) error { r.Longitude = looseCoord(v); return nil },
	"imagenes":              decodeImages,
	"caracteristicas":       decodeCharacteristics,
}

func (r *RawListing) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode listing object: %w", err)
	}

	for key, raw := range obj {
		dec, ok := rawFields[key]
		if !ok {
			if r.RawExtra == nil {
				r.RawExtra = make(map[string]json.RawMessage)
			}
			r.RawExtra[key] = raw
			continue
		}
		if err := dec(r, raw); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	return nil
}

// ExtraJSON serializes the unrecognized fields for storage.
func (r *RawListing) ExtraJSON() string {
	if len(r.RawExtra) == 0 {
		return ""
	}
	data, err := json.Marshal(r.RawExtra)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeRef(raw json.RawMessage, out *int64) error {
	if isNull(raw) {
		return nil
	}
	s := looseString(raw)
	if s == "" {
		return nil
	}
	ref, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// "261.0" is tolerated, anything else is not a ref
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("unparseable ref %q", s)
		}
		ref = int64(f)
	}
	*out = ref
	return nil
}

func decodeImages(r *RawListing, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// a non-list payload is treated as absent
		return nil
	}
	r.HasImages = true
	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		// some feeds send bare URL strings instead of objects
		if len(trimmed) > 0 && trimmed[0] == '"' {
			if u := looseString(item); u != "" {
				r.Images = append(r.Images, RawImage{URL: u})
			}
			continue
		}
		var img RawImage
		var obj struct {
			URL       string          `json:"url"`
			Order     json.RawMessage `json:"orden"`
			IsPrimary json.RawMessage `json:"es_principal"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		img.URL = strings.TrimSpace(obj.URL)
		if img.URL == "" {
			continue
		}
		if !isNull(obj.Order) && len(obj.Order) > 0 {
			o := int(looseFloat(obj.Order))
			img.Order = &o
		}
		img.IsPrimary = looseBool(obj.IsPrimary)
		r.Images = append(r.Images, img)
	}
	return nil
}

func decodeCharacteristics(r *RawListing, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	var items []RawCharacteristic
	if err := json.Unmarshal(raw, &items); err != nil {
		// a non-list payload is treated as absent
		return nil
	}
	r.HasCharacteristics = true
	for _, c := range items {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		r.Characteristics = append(r.Characteristics, c)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// looseString accepts strings, numbers and booleans.
func looseString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// looseFloat accepts numbers and numeric strings such as "$ 1.200.000" or
// "85,5 m2". Unparseable values become 0.
func looseFloat(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return ParseLooseNumber(looseString(raw))
}

// ParseLooseNumber parses human formatted numbers. When both a dot and a
// comma appear, the last one is the decimal separator. A lone separator is
// decimal when followed by one, two or more than three digits, or when the
// integer part is zero; a repeated separator, or a lone one followed by
// exactly three digits, groups thousands.
func ParseLooseNumber(s string) float64 {
	clean := strings.TrimRight(numberRegex.FindString(s), ".,")
	if clean == "" || clean == "-" {
		return 0
	}

	last := strings.LastIndexAny(clean, ".,")
	if last >= 0 {
		intPart, frac := clean[:last], clean[last+1:]
		grouping := strings.NewReplacer(".", "", ",", "")
		if isDecimalSeparator(intPart, clean[last], len(frac)) {
			clean = grouping.Replace(intPart) + "." + frac
		} else {
			clean = grouping.Replace(clean)
		}
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return f
}

func isDecimalSeparator(intPart string, sep byte, fracDigits int) bool {
	other := ","
	if sep == ',' {
		other = "."
	}
	switch {
	case strings.Contains(intPart, other):
		return true
	case strings.IndexByte(intPart, sep) >= 0:
		return false
	case fracDigits != 3:
		return true
	}
	digits := strings.TrimPrefix(intPart, "-")
	return digits == "0" || digits == ""
}

func looseCoord(raw json.RawMessage) *string {
	s := looseString(raw)
	if s == "" {
		return nil
	}
	return &s
}

func looseBool(raw json.RawMessage) bool {
	switch strings.ToLower(looseString(raw)) {
	case "true", "1", "si", "sí", "yes", "s":
		return true
	}
	return false
}
