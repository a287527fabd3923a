package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactFieldsJSONFlattensCustomKeys(t *testing.T) {
	fields := ContactFields{
		FirstName: "Max",
		LastName:  "Mustermann",
		Email:     "max@example.com",
		Address:   Address{Street: "Hauptstr. 1", City: "Berlin", Zip: "10115"},
		Custom: map[string]interface{}{
			"birthday": "1980-01-01",
			"title":    "Dr.",
		},
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)

	// custom keys sit next to the known keys, not nested
	raw := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Max", raw["firstName"])
	assert.Equal(t, "1980-01-01", raw["birthday"])
	assert.Equal(t, "Dr.", raw["title"])
	_, hasCustom := raw["custom"]
	assert.False(t, hasCustom)

	decoded := ContactFields{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, fields.FirstName, decoded.FirstName)
	assert.Equal(t, fields.Address, decoded.Address)
	assert.Equal(t, fields.Custom, decoded.Custom)
}

func TestContactFieldsCustomCannotShadowKnownKeys(t *testing.T) {
	fields := ContactFields{
		FirstName: "Max",
		LastName:  "Mustermann",
		Custom:    map[string]interface{}{"email": "sneaky@example.com"},
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)

	raw := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "", raw["email"])
}

func TestContactPatchDistinguishesAbsentFromEmpty(t *testing.T) {
	patch := ContactPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"email":"","phone":"123"}`), &patch))

	require.NotNil(t, patch.Email)
	assert.Equal(t, "", *patch.Email)
	require.NotNil(t, patch.Phone)
	assert.Equal(t, "123", *patch.Phone)
	assert.Nil(t, patch.FirstName)
	assert.Nil(t, patch.Address)
}

func TestContactPatchApply(t *testing.T) {
	fields := ContactFields{
		FirstName: "Max",
		LastName:  "Mustermann",
		Email:     "max@example.com",
		Address:   Address{City: "Berlin"},
		Custom:    map[string]interface{}{"birthday": "1980-01-01"},
	}

	patch := ContactPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"email": "new@example.com",
		"address": {"street": "Neue Str. 2"},
		"title": "Dr."
	}`), &patch))
	patch.Apply(&fields)

	assert.Equal(t, "Max", fields.FirstName)
	assert.Equal(t, "new@example.com", fields.Email)
	assert.Equal(t, "Neue Str. 2", fields.Address.Street)
	assert.Equal(t, "Berlin", fields.Address.City) // untouched by partial address
	assert.Equal(t, "1980-01-01", fields.Custom["birthday"])
	assert.Equal(t, "Dr.", fields.Custom["title"])

	// clearing with an explicit empty string
	empty := ""
	(&ContactPatch{Email: &empty}).Apply(&fields)
	assert.Equal(t, "", fields.Email)
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Max Mustermann", ContactFields{FirstName: " Max ", LastName: "Mustermann"}.FullName())
	assert.Equal(t, "Mustermann", ContactFields{LastName: "Mustermann"}.FullName())
	assert.Equal(t, "", ContactFields{}.FullName())
}

func TestValidGroupColor(t *testing.T) {
	assert.True(t, ValidGroupColor(DefaultGroupColor))
	assert.True(t, ValidGroupColor("rose"))
	assert.False(t, ValidGroupColor("mauve"))
	assert.False(t, ValidGroupColor(""))
}
