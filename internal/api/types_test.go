package api

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalUUID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		body    string
		wantSet bool
		wantID  *uuid.UUID
	}{
		{"absent", `{}`, false, nil},
		{"null", `{"ownerId":null}`, true, nil},
		{"empty string", `{"ownerId":""}`, true, nil},
		{"value", `{"ownerId":"` + id.String() + `"}`, true, &id},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req updateLeadRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.wantSet, req.OwnerID.Set)
			assert.Equal(t, tt.wantID, req.OwnerID.ID)
		})
	}

	var req updateLeadRequest
	assert.Error(t, json.Unmarshal([]byte(`{"ownerId":"not-a-uuid"}`), &req))
}

func TestLooseDecimal(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
		want  string
	}{
		{`1234.5`, true, "1234.50"},
		{`"1234.5"`, true, "1234.50"},
		{`"$1,234.50"`, true, "1234.50"},
		{`""`, false, ""},
		{`"abc"`, false, ""},
		{`null`, false, ""},
		{`true`, false, ""},
		{`{"x":1}`, false, ""},
		{`"1e15"`, true, "1000000000000000.00"},
		{`1e30000000`, false, ""},
		{`"1e30000000"`, false, ""},
		{`"1e-30000000"`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var req fundingRequest
			require.NoError(t, json.Unmarshal([]byte(`{"funded_amount":`+tt.raw+`}`), &req))
			assert.Equal(t, tt.valid, req.FundedAmount.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, req.FundedAmount.Decimal.StringFixed(2))
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDate("2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-31", d.Format(dateLayout))

	_, err = parseDate("31/03/2026")
	assert.Error(t, err)
}
