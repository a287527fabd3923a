// Package importer runs the bulk contact import: duplicate detection
// against the live collection, a two-phase merge per duplicate (propose,
// then apply or skip), and group assignment of the records that made it in.
package importer

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/service"
)

// MatchPolicy decides which candidate becomes the merge primary when the
// name match and the email match point at different contacts.
type MatchPolicy int

const (
	// MatchNameFirst ranks name-pair matches before email matches
	// (discovery order of the original workflow). Default.
	MatchNameFirst MatchPolicy = iota
	// MatchEmailFirst prefers the email match as primary.
	MatchEmailFirst
)

type Choice string

const (
	KeepExisting Choice = "existing"
	TakeNew      Choice = "new"
)

type Record struct {
	Fields models.ContactFields
	Tags   []string
}

// FieldConflict is one binary keep-or-take decision. A field present on only
// one side is preselected to that side; fields equal after trimming never
// appear here.
type FieldConflict struct {
	Field       string
	Existing    string
	Incoming    string
	Preselected Choice
}

// Proposal suspends the import until the caller settles it with Apply or
// Skip. The decision may never arrive; Skip is the terminal fallback.
type Proposal struct {
	Record       Record
	PrimaryID    string
	PrimaryName  string
	CandidateIDs []string
	Conflicts    []FieldConflict
}

// Resolution maps conflict field names to the chosen side. Fields left out
// fall back to the conflict's preselection.
type Resolution map[string]Choice

type Summary struct {
	Inserted []string // contact ids newly created
	Merged   []string // contact ids updated by a merge
	Skipped  []string // display names of records that were not taken
	// ImportedIDs is Inserted plus Merged in processing order; group
	// assignment applies to exactly these.
	ImportedIDs []string
}

type Importer struct {
	contacts *service.Contacts
	groups   *service.Groups
	logger   *zap.SugaredLogger
	policy   MatchPolicy
}

func New(contacts *service.Contacts, groups *service.Groups, l *zap.SugaredLogger, policy MatchPolicy) *Importer {
	return &Importer{
		contacts: contacts,
		groups:   groups,
		logger:   l,
		policy:   policy,
	}
}

// Session walks a batch in input order. Each record is evaluated against the
// collection state at the time it is processed, so a record can be detected
// as a duplicate of one inserted earlier in the same batch.
type Session struct {
	imp     *Importer
	records []Record
	pos     int
	pending *Proposal
	summary Summary
}

func (imp *Importer) Start(records []Record) *Session {
	return &Session{
		imp:     imp,
		records: records,
	}
}

// Next inserts non-duplicates until it hits a record with duplicate
// candidates, which it returns as a Proposal. A nil Proposal means the batch
// is exhausted. The pending proposal must be settled before calling Next
// again.
func (s *Session) Next() (*Proposal, error) {
	if s.pending != nil {
		s.skipPending()
	}

	for s.pos < len(s.records) {
		rec := s.records[s.pos]
		s.pos++

		matches, err := s.imp.contacts.FindDuplicates(
			rec.Fields.FirstName, rec.Fields.LastName, rec.Fields.Email,
			s.imp.policy == MatchEmailFirst)
		if err != nil {
			return nil, err
		}

		if len(matches) == 0 {
			view, err := s.imp.contacts.Create(service.ContactInput{
				Fields: patchFrom(rec.Fields),
				Tags:   rec.Tags,
			})
			if err != nil {
				s.imp.logger.Warnw("import record rejected", "name", rec.Fields.FullName(), "error", err)
				s.summary.Skipped = append(s.summary.Skipped, rec.Fields.FullName()+": "+err.Error())
				continue
			}
			s.summary.Inserted = append(s.summary.Inserted, view.ID)
			s.summary.ImportedIDs = append(s.summary.ImportedIDs, view.ID)
			continue
		}

		if len(matches) > 1 {
			s.imp.logger.Warnw("multiple duplicate candidates", "name", rec.Fields.FullName(), "count", len(matches))
		}

		primary := matches[0]
		candidateIDs := make([]string, len(matches))
		for i := range matches {
			candidateIDs[i] = matches[i].ID
		}
		s.pending = &Proposal{
			Record:       rec,
			PrimaryID:    primary.ID,
			PrimaryName:  primary.Fields.FullName(),
			CandidateIDs: candidateIDs,
			Conflicts:    conflictsBetween(primary.Fields, rec.Fields),
		}
		return s.pending, nil
	}
	return nil, nil
}

// Apply settles the pending proposal with the given resolution and updates
// the primary contact. The chosen email is cleared from the other duplicate
// candidates first, so the email-uniqueness invariant moves instead of
// breaking.
func (s *Session) Apply(res Resolution) error {
	p := s.pending
	if p == nil {
		return nil
	}
	s.pending = nil

	patch := models.ContactPatch{}
	for _, conflict := range p.Conflicts {
		choice := conflict.Preselected
		if chosen, ok := res[conflict.Field]; ok {
			choice = chosen
		}
		value := conflict.Existing
		if choice == TakeNew {
			value = conflict.Incoming
		}
		setPatchField(&patch, conflict.Field, value)
	}

	if _, err := s.imp.contacts.Merge(p.PrimaryID, patch, p.CandidateIDs); err != nil {
		s.imp.logger.Warnw("merge failed", "primary", p.PrimaryID, "error", err)
		s.summary.Skipped = append(s.summary.Skipped, p.Record.Fields.FullName()+": "+err.Error())
		return err
	}

	s.summary.Merged = append(s.summary.Merged, p.PrimaryID)
	s.summary.ImportedIDs = append(s.summary.ImportedIDs, p.PrimaryID)
	return nil
}

// Skip discards the pending record: it is neither inserted nor merged.
func (s *Session) Skip() {
	s.skipPending()
}

func (s *Session) skipPending() {
	if s.pending == nil {
		return
	}
	s.summary.Skipped = append(s.summary.Skipped, s.pending.Record.Fields.FullName())
	s.pending = nil
}

func (s *Session) Summary() Summary {
	return s.summary
}

// AssignGroup adds every imported (inserted or merged) contact to the group.
// The membership add is idempotent, so contacts already in the group are
// untouched.
func (s *Session) AssignGroup(groupID string) error {
	for _, contactID := range s.summary.ImportedIDs {
		if _, err := s.imp.groups.AddContact(groupID, contactID); err != nil {
			return err
		}
	}
	return nil
}

////////

// mergeFields are the typed contact attributes subject to field-by-field
// merge, in dialog order.
var mergeFields = []string{
	"firstName", "lastName", "gender", "email", "phone", "mobile",
	"street", "zip", "city", "country", "notes",
}

// customMergeFields are the open-bag keys the CSV parser emits; they come
// right after the typed fields in the dialog.
var customMergeFields = []string{"title", "salutation", "birthday"}

func conflictsBetween(existing, incoming models.ContactFields) []FieldConflict {
	fields := append([]string{}, mergeFields...)
	fields = append(fields, customConflictKeys(existing.Custom, incoming.Custom)...)

	conflicts := make([]FieldConflict, 0)
	for _, field := range fields {
		existingValue := strings.TrimSpace(fieldValue(existing, field))
		incomingValue := strings.TrimSpace(fieldValue(incoming, field))

		if existingValue == "" && incomingValue == "" {
			continue
		}
		if existingValue == incomingValue {
			continue
		}

		preselected := KeepExisting
		if existingValue == "" {
			preselected = TakeNew
		}
		conflicts = append(conflicts, FieldConflict{
			Field:       field,
			Existing:    existingValue,
			Incoming:    incomingValue,
			Preselected: preselected,
		})
	}
	return conflicts
}

// customConflictKeys returns the open-bag keys present on either side: the
// parser-emitted ones first in their dialog order, anything else sorted.
func customConflictKeys(existing, incoming map[string]interface{}) []string {
	present := func(key string) bool {
		_, inExisting := existing[key]
		_, inIncoming := incoming[key]
		return inExisting || inIncoming
	}

	seen := map[string]bool{}
	keys := make([]string, 0)
	for _, key := range customMergeFields {
		if present(key) {
			keys = append(keys, key)
			seen[key] = true
		}
	}

	rest := make([]string, 0)
	for _, bag := range []map[string]interface{}{existing, incoming} {
		for key := range bag {
			if !seen[key] {
				seen[key] = true
				rest = append(rest, key)
			}
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func fieldValue(f models.ContactFields, field string) string {
	switch field {
	case "firstName":
		return f.FirstName
	case "lastName":
		return f.LastName
	case "gender":
		return f.Gender
	case "email":
		return f.Email
	case "phone":
		return f.Phone
	case "mobile":
		return f.Mobile
	case "street":
		return f.Address.Street
	case "zip":
		return f.Address.Zip
	case "city":
		return f.Address.City
	case "country":
		return f.Address.Country
	case "notes":
		return f.Notes
	}
	if value, ok := f.Custom[field]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

func setPatchField(p *models.ContactPatch, field, value string) {
	v := value
	switch field {
	case "firstName":
		p.FirstName = &v
	case "lastName":
		p.LastName = &v
	case "gender":
		p.Gender = &v
	case "email":
		p.Email = &v
	case "phone":
		p.Phone = &v
	case "mobile":
		p.Mobile = &v
	case "notes":
		p.Notes = &v
	case "street", "zip", "city", "country":
		if p.Address == nil {
			p.Address = &models.AddressPatch{}
		}
		switch field {
		case "street":
			p.Address.Street = &v
		case "zip":
			p.Address.Zip = &v
		case "city":
			p.Address.City = &v
		case "country":
			p.Address.Country = &v
		}
	default:
		if p.Custom == nil {
			p.Custom = map[string]interface{}{}
		}
		p.Custom[field] = v
	}
}

func patchFrom(f models.ContactFields) models.ContactPatch {
	clone := f
	return models.ContactPatch{
		FirstName: &clone.FirstName,
		LastName:  &clone.LastName,
		Gender:    &clone.Gender,
		Email:     &clone.Email,
		Phone:     &clone.Phone,
		Mobile:    &clone.Mobile,
		Company:   &clone.Company,
		Notes:     &clone.Notes,
		Address: &models.AddressPatch{
			Street:  &clone.Address.Street,
			City:    &clone.Address.City,
			Zip:     &clone.Address.Zip,
			Country: &clone.Address.Country,
		},
		Custom: clone.Custom,
	}
}
