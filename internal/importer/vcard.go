package importer

import (
	"regexp"
	"strings"
)

// Property regexes are anchored to line starts so N: does not match the tail
// of VERSION: and friends.
var (
	vcardNameRe  = regexp.MustCompile(`(?m)^N:([^;\r\n]*);([^;\r\n]*)`)
	vcardEmailRe = regexp.MustCompile(`(?m)^EMAIL[^:\r\n]*:([^\r\n]+)`)
	vcardTelRe   = regexp.MustCompile(`(?m)^TEL[^:\r\n]*:([^\r\n]+)`)
	vcardAdrRe   = regexp.MustCompile(`(?m)^ADR[^:\r\n]*:;;([^;\r\n]*);([^;\r\n]*);[^;\r\n]*;([^;\r\n]*);([^\r\n]*)`)
)

// ParseVCard reads contact records from vCard text (one or more cards).
// Records without any name are dropped.
func ParseVCard(text string) []Record {
	records := make([]Record, 0)

	cards := strings.Split(text, "BEGIN:VCARD")
	for _, card := range cards[1:] {
		rec := Record{}

		if m := vcardNameRe.FindStringSubmatch(card); m != nil {
			rec.Fields.LastName = strings.TrimSpace(m[1])
			rec.Fields.FirstName = strings.TrimSpace(m[2])
		}
		if m := vcardEmailRe.FindStringSubmatch(card); m != nil {
			rec.Fields.Email = strings.TrimSpace(m[1])
		}
		if m := vcardTelRe.FindStringSubmatch(card); m != nil {
			rec.Fields.Phone = strings.TrimSpace(m[1])
		}
		if m := vcardAdrRe.FindStringSubmatch(card); m != nil {
			rec.Fields.Address.Street = strings.TrimSpace(m[1])
			rec.Fields.Address.City = strings.TrimSpace(m[2])
			rec.Fields.Address.Zip = strings.TrimSpace(m[3])
			rec.Fields.Address.Country = strings.TrimSpace(m[4])
		}

		if rec.Fields.FirstName != "" || rec.Fields.LastName != "" {
			records = append(records, rec)
		}
	}
	return records
}
