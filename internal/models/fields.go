package models

import (
	"encoding/json"
	"strings"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderDiverse = "diverse"
	GenderUnset   = ""
)

// GroupColors are the named colors a group may carry.
var GroupColors = []string{
	"red", "orange", "amber", "yellow", "lime", "green", "emerald", "teal",
	"cyan", "sky", "blue", "indigo", "violet", "purple", "fuchsia", "pink", "rose",
}

const DefaultGroupColor = "blue"

func ValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderDiverse, GenderUnset:
		return true
	}
	return false
}

func ValidGroupColor(c string) bool {
	for _, color := range GroupColors {
		if c == color {
			return true
		}
	}
	return false
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// ContactFields holds the typed contact attributes plus an open bag of
// custom fields. On the wire the custom keys are flattened into the same
// "fields" object as the known keys.
type ContactFields struct {
	FirstName string
	LastName  string
	Gender    string
	Email     string
	Phone     string
	Mobile    string
	Company   string
	Address   Address
	Notes     string
	Custom    map[string]interface{}
}

// standardKeys are the field names owned by the typed struct; everything
// else lands in Custom.
var standardKeys = map[string]bool{
	"firstName": true,
	"lastName":  true,
	"gender":    true,
	"email":     true,
	"phone":     true,
	"mobile":    true,
	"company":   true,
	"address":   true,
	"notes":     true,
}

func (f ContactFields) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"firstName": f.FirstName,
		"lastName":  f.LastName,
		"gender":    f.Gender,
		"email":     f.Email,
		"phone":     f.Phone,
		"mobile":    f.Mobile,
		"company":   f.Company,
		"address":   f.Address,
		"notes":     f.Notes,
	}
	for key, value := range f.Custom {
		if !standardKeys[key] {
			out[key] = value
		}
	}
	return json.Marshal(out)
}

func (f *ContactFields) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	readString := func(key string, dst *string) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(msg, dst)
	}

	for key, dst := range map[string]*string{
		"firstName": &f.FirstName,
		"lastName":  &f.LastName,
		"gender":    &f.Gender,
		"email":     &f.Email,
		"phone":     &f.Phone,
		"mobile":    &f.Mobile,
		"company":   &f.Company,
		"notes":     &f.Notes,
	} {
		if err := readString(key, dst); err != nil {
			return err
		}
	}
	if msg, ok := raw["address"]; ok {
		if err := json.Unmarshal(msg, &f.Address); err != nil {
			return err
		}
	}

	for key, msg := range raw {
		if standardKeys[key] {
			continue
		}
		var value interface{}
		if err := json.Unmarshal(msg, &value); err != nil {
			return err
		}
		if f.Custom == nil {
			f.Custom = map[string]interface{}{}
		}
		f.Custom[key] = value
	}
	return nil
}

// FullName joins first and last name for display.
func (f ContactFields) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName))
}

type AddressPatch struct {
	Street  *string `json:"street"`
	City    *string `json:"city"`
	Zip     *string `json:"zip"`
	Country *string `json:"country"`
}

// ContactPatch is a partial update of ContactFields: nil means "leave the
// stored value". Unknown keys merge into the custom-field bag.
type ContactPatch struct {
	FirstName *string
	LastName  *string
	Gender    *string
	Email     *string
	Phone     *string
	Mobile    *string
	Company   *string
	Address   *AddressPatch
	Notes     *string
	Custom    map[string]interface{}
}

func (p *ContactPatch) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	readString := func(key string, dst **string) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return err
		}
		*dst = &s
		return nil
	}

	for key, dst := range map[string]**string{
		"firstName": &p.FirstName,
		"lastName":  &p.LastName,
		"gender":    &p.Gender,
		"email":     &p.Email,
		"phone":     &p.Phone,
		"mobile":    &p.Mobile,
		"company":   &p.Company,
		"notes":     &p.Notes,
	} {
		if err := readString(key, dst); err != nil {
			return err
		}
	}
	if msg, ok := raw["address"]; ok {
		p.Address = &AddressPatch{}
		if err := json.Unmarshal(msg, p.Address); err != nil {
			return err
		}
	}

	for key, msg := range raw {
		if standardKeys[key] {
			continue
		}
		var value interface{}
		if err := json.Unmarshal(msg, &value); err != nil {
			return err
		}
		if p.Custom == nil {
			p.Custom = map[string]interface{}{}
		}
		p.Custom[key] = value
	}
	return nil
}

// Apply writes the present patch values over f, merging custom keys.
func (p *ContactPatch) Apply(f *ContactFields) {
	if p == nil {
		return
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&f.FirstName, p.FirstName)
	setString(&f.LastName, p.LastName)
	setString(&f.Gender, p.Gender)
	setString(&f.Email, p.Email)
	setString(&f.Phone, p.Phone)
	setString(&f.Mobile, p.Mobile)
	setString(&f.Company, p.Company)
	setString(&f.Notes, p.Notes)
	if p.Address != nil {
		setString(&f.Address.Street, p.Address.Street)
		setString(&f.Address.City, p.Address.City)
		setString(&f.Address.Zip, p.Address.Zip)
		setString(&f.Address.Country, p.Address.Country)
	}
	if len(p.Custom) > 0 {
		if f.Custom == nil {
			f.Custom = map[string]interface{}{}
		}
		for key, value := range p.Custom {
			f.Custom[key] = value
		}
	}
}
