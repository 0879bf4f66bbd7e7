package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var jsonNull = []byte("null")

// OptionalUUID tells an absent field from an explicit null. Set is true
// whenever the key was present in the body; an empty string counts as null.
type OptionalUUID struct {
	Set bool
	ID  *uuid.UUID
}

func (o *OptionalUUID) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.ID = nil
	if bytes.Equal(data, jsonNull) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	o.ID = &id
	return nil
}

// maxLooseExponent bounds the exponent of a decoded amount. Printing
// "1e30000000" would expand it to thirty million digits.
const maxLooseExponent = 32

// LooseDecimal accepts a JSON number or numeric string. Anything else,
// including "" and "abc", decodes to an unset value instead of failing.
type LooseDecimal struct {
	decimal.NullDecimal
}

func (l *LooseDecimal) UnmarshalJSON(data []byte) error {
	l.NullDecimal = decimal.NullDecimal{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		raw = strings.TrimPrefix(raw, "$")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Exponent() > maxLooseExponent || d.Exponent() < -maxLooseExponent {
		return nil
	}
	l.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

const dateLayout = "2006-01-02"

// parseDate reads an optional YYYY-MM-DD value.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
