package importer

import (
	"regexp"
	"strings"

	"github.com/kontakthub/kontakthub-back/internal/models"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// ParseCSV reads contact records from CSV text. The delimiter is sniffed
// from the header line: semicolon, tab, comma, or runs of two-plus spaces.
// Column names follow the German export formats the app accepts. Records
// without any name are dropped.
func ParseCSV(text string) []Record {
	lines := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	if len(lines) < 2 {
		return nil
	}

	split := splitterFor(lines[0])
	headers := split(lines[0])

	hasBriefanrede := false
	for _, h := range headers {
		if h == "Briefanrede" {
			hasBriefanrede = true
		}
	}

	records := make([]Record, 0)
	for _, line := range lines[1:] {
		values := split(line)
		rec := Record{}

		for i, header := range headers {
			if header == "" || i >= len(values) {
				continue
			}
			value := strings.TrimSpace(values[i])
			if value == "" {
				continue
			}

			switch header {
			case "Nachname", "Name":
				rec.Fields.LastName = value
			case "Vorname":
				rec.Fields.FirstName = value
			case "ZustellStrasse", "ZustellStraße", "Strasse", "Straße":
				rec.Fields.Address.Street = value
			case "ZustellPLZ", "PLZ":
				rec.Fields.Address.Zip = value
			case "ZustellOrt", "Ort":
				rec.Fields.Address.City = value
			case "E-Mail1", "Mail":
				rec.Fields.Email = value
			case "Telefon":
				rec.Fields.Phone = value
			case "Titel":
				setCustom(&rec, "title", value)
			case "Geburtstag":
				setCustom(&rec, "birthday", value)
			case "Briefanrede":
				setCustom(&rec, "salutation", value)
				rec.Fields.Gender = genderFromSalutation(value)
			case "Anrede":
				if !hasBriefanrede {
					rec.Fields.Gender = genderFromSalutation(value)
				}
			}
		}

		if rec.Fields.FirstName != "" || rec.Fields.LastName != "" {
			records = append(records, rec)
		}
	}
	return records
}

func splitterFor(header string) func(string) []string {
	trimAll := func(parts []string) []string {
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	switch {
	case strings.Contains(header, ";"):
		return func(line string) []string { return trimAll(strings.Split(line, ";")) }
	case strings.Contains(header, "\t"):
		return func(line string) []string { return trimAll(strings.Split(line, "\t")) }
	case strings.Contains(header, ","):
		return func(line string) []string { return trimAll(strings.Split(line, ",")) }
	default:
		return func(line string) []string { return trimAll(multiSpaceRe.Split(line, -1)) }
	}
}

func genderFromSalutation(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "herr"):
		return models.GenderMale
	case strings.Contains(lower, "frau"):
		return models.GenderFemale
	default:
		return models.GenderDiverse
	}
}

func setCustom(rec *Record, key, value string) {
	if rec.Fields.Custom == nil {
		rec.Fields.Custom = map[string]interface{}{}
	}
	rec.Fields.Custom[key] = value
}
