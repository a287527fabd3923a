package service

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/models"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
)

type Contacts struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewContacts(db *gorm.DB, l *zap.SugaredLogger) *Contacts {
	return &Contacts{
		db:     db,
		logger: l,
	}
}

type ContactInput struct {
	ID       string
	Fields   models.ContactPatch
	GroupIDs []string // nil leaves memberships unchanged, non-nil replaces
	Tags     []string // nil leaves tags unchanged
	Archived *bool
}

type ContactListOptions struct {
	Search    string
	Archived  *bool
	SortBy    string
	SortOrder string
}

type ContactStats struct {
	Total       int64 `json:"total"`
	WithEmail   int64 `json:"withEmail"`
	WithPhone   int64 `json:"withPhone"`
	WithCompany int64 `json:"withCompany"`
	Archived    int64 `json:"archived"`
}

var contactSortFields = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"company":    "company",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *Contacts) List(opts ContactListOptions) ([]models.ContactView, error) {
	pred := squirrel.And{}
	if opts.Archived != nil {
		pred = append(pred, squirrel.Eq{"archived": *opts.Archived})
	}
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		pred = append(pred, squirrel.Or{
			squirrel.Like{"first_name": like},
			squirrel.Like{"last_name": like},
			squirrel.Like{"email": like},
			squirrel.Like{"phone": like},
			squirrel.Like{"mobile": like},
			squirrel.Like{"company": like},
			squirrel.Like{"notes": like},
		})
	}

	sortField, ok := contactSortFields[opts.SortBy]
	if !ok {
		sortField = "last_name"
	}
	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	builder := squirrel.Select("*").From("contacts").OrderBy(sortField + " " + order)
	if len(pred) > 0 {
		builder = builder.Where(pred)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, storeErr(err, "build contact list sql")
	}

	rows := make([]db.Contact, 0)
	if res := s.db.Raw(sql, args...).Scan(&rows); res.Error != nil {
		return nil, storeErr(res.Error, "list contacts")
	}

	groupIDs, err := s.groupIDsFor(s.db, rows)
	if err != nil {
		return nil, err
	}

	views := make([]models.ContactView, len(rows))
	for i := range rows {
		views[i] = models.ContactViewFrom(rows[i], groupIDs[rows[i].ID])
	}
	return views, nil
}

func (s *Contacts) Get(id string) (*models.ContactView, error) {
	return s.getView(s.db, id)
}

func (s *Contacts) Create(in ContactInput) (*models.ContactView, error) {
	fields := models.ContactFields{}
	in.Fields.Apply(&fields)

	if err := validateContactFields(fields); err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, fields, ""); err != nil {
			return err
		}

		model := contactRow(id, fields, in.Tags, in.Archived != nil && *in.Archived)
		if res := tx.Create(&model); res.Error != nil {
			return storeErr(res.Error, "create contact")
		}

		return s.replaceGroupRows(tx, id, in.GroupIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.getView(s.db, id)
}

func (s *Contacts) Update(id string, in ContactInput) (*models.ContactView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.updateTx(tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, id)
}

// Merge applies a duplicate-merge resolution in a single transaction: the
// chosen email is first cleared from the other duplicate candidates so the
// email-uniqueness invariant moves to the primary instead of breaking it.
func (s *Contacts) Merge(primaryID string, patch models.ContactPatch, clearEmailFrom []string) (*models.ContactView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if patch.Email != nil && *patch.Email != "" {
			email := strings.ToLower(strings.TrimSpace(*patch.Email))
			for _, otherID := range clearEmailFrom {
				if otherID == primaryID {
					continue
				}
				res := tx.Model(&db.Contact{}).
					Where("id = ? AND lower(email) = ?", otherID, email).
					Update("email", "")
				if res.Error != nil {
					return storeErr(res.Error, "clear duplicate email")
				}
			}
		}
		return s.updateTx(tx, primaryID, ContactInput{Fields: patch})
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, primaryID)
}

func (s *Contacts) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		existing := db.Contact{}
		if res := tx.First(&existing, "id = ?", id); res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				return apperror.NotFound("contact", id)
			}
			return storeErr(res.Error, "load contact")
		}

		// Explicit cascade: no join row may outlive the contact.
		if res := tx.Where("contact_id = ?", id).Delete(&db.ContactGroup{}); res.Error != nil {
			return storeErr(res.Error, "cascade contact_groups")
		}
		if res := tx.Where("contact_id = ?", id).Delete(&db.EventContact{}); res.Error != nil {
			return storeErr(res.Error, "cascade event_contacts")
		}
		if res := tx.Delete(&db.Contact{}, "id = ?", id); res.Error != nil {
			return storeErr(res.Error, "delete contact")
		}
		return nil
	})
}

func (s *Contacts) Stats() (*ContactStats, error) {
	stats := ContactStats{}
	counts := []struct {
		dst   *int64
		where string
	}{
		{&stats.Total, "archived = false"},
		{&stats.WithEmail, "archived = false AND email <> ''"},
		{&stats.WithPhone, "archived = false AND (phone <> '' OR mobile <> '')"},
		{&stats.WithCompany, "archived = false AND company <> ''"},
		{&stats.Archived, "archived = true"},
	}
	for _, c := range counts {
		if res := s.db.Model(&db.Contact{}).Where(c.where).Count(c.dst); res.Error != nil {
			return nil, storeErr(res.Error, "count contacts")
		}
	}
	return &stats, nil
}

// FindDuplicates returns the contacts matching the given name pair and, when
// non-empty, the given email. The two match sets are concatenated in the
// requested order and deduplicated keeping the first occurrence.
func (s *Contacts) FindDuplicates(firstName, lastName, email string, emailFirst bool) ([]models.ContactView, error) {
	byName := make([]db.Contact, 0)
	res := s.db.Where("lower(first_name) = ? AND lower(last_name) = ?",
		strings.ToLower(strings.TrimSpace(firstName)), strings.ToLower(strings.TrimSpace(lastName))).
		Find(&byName)
	if res.Error != nil {
		return nil, storeErr(res.Error, "find name duplicates")
	}

	byEmail := make([]db.Contact, 0)
	if strings.TrimSpace(email) != "" {
		res := s.db.Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).Find(&byEmail)
		if res.Error != nil {
			return nil, storeErr(res.Error, "find email duplicates")
		}
	}

	ordered := append(append([]db.Contact{}, byName...), byEmail...)
	if emailFirst {
		ordered = append(append([]db.Contact{}, byEmail...), byName...)
	}

	seen := map[string]bool{}
	matches := make([]models.ContactView, 0, len(ordered))
	for _, row := range ordered {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		matches = append(matches, models.ContactViewFrom(row, nil))
	}
	return matches, nil
}

////////

func (s *Contacts) updateTx(tx *gorm.DB, id string, in ContactInput) error {
	existing := db.Contact{}
	if res := tx.First(&existing, "id = ?", id); res.Error != nil {
		if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
			return apperror.NotFound("contact", id)
		}
		return storeErr(res.Error, "load contact")
	}

	view := models.ContactViewFrom(existing, nil)
	fields := view.Fields
	in.Fields.Apply(&fields)

	if err := validateContactFields(fields); err != nil {
		return err
	}
	if err := s.checkUnique(tx, fields, id); err != nil {
		return err
	}

	tags := view.Tags
	if in.Tags != nil {
		tags = in.Tags
	}
	archived := existing.Archived
	if in.Archived != nil {
		archived = *in.Archived
	}

	model := contactRow(id, fields, tags, archived)
	model.CreatedAt = existing.CreatedAt
	if res := tx.Model(&db.Contact{}).Where("id = ?", id).Select(
		"first_name", "last_name", "gender", "email", "phone", "mobile", "company",
		"street", "city", "zip", "country", "notes", "tags", "custom_fields", "archived", "updated_at",
	).Updates(&model); res.Error != nil {
		return storeErr(res.Error, "update contact")
	}

	if in.GroupIDs != nil {
		if err := s.replaceGroupRows(tx, id, in.GroupIDs); err != nil {
			return err
		}
	}
	return nil
}

// replaceGroupRows is a full membership replace: drop every row for the
// contact, then insert one row per requested group. Duplicate input ids
// collapse via the conflict-ignoring insert.
func (s *Contacts) replaceGroupRows(tx *gorm.DB, contactID string, groupIDs []string) error {
	if groupIDs == nil {
		return nil
	}
	if res := tx.Where("contact_id = ?", contactID).Delete(&db.ContactGroup{}); res.Error != nil {
		return storeErr(res.Error, "clear contact groups")
	}
	for _, groupID := range groupIDs {
		if err := requireExists(tx, &db.Group{}, "group", groupID); err != nil {
			return err
		}
		row := db.ContactGroup{ContactID: contactID, GroupID: groupID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add contact to group")
		}
	}
	return nil
}

func (s *Contacts) groupIDsFor(tx *gorm.DB, rows []db.Contact) (map[string][]string, error) {
	byContact := map[string][]string{}
	if len(rows) == 0 {
		return byContact, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	joins := make([]db.ContactGroup, 0)
	if res := tx.Where("contact_id IN ?", ids).Order("created_at").Find(&joins); res.Error != nil {
		return nil, storeErr(res.Error, "load contact groups")
	}
	for _, j := range joins {
		byContact[j.ContactID] = append(byContact[j.ContactID], j.GroupID)
	}
	return byContact, nil
}

func (s *Contacts) getView(tx *gorm.DB, id string) (*models.ContactView, error) {
	row := db.Contact{}
	if res := tx.First(&row, "id = ?", id); res.Error != nil {
		if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, storeErr(res.Error, "load contact")
	}
	groupIDs, err := s.groupIDsFor(tx, []db.Contact{row})
	if err != nil {
		return nil, err
	}
	view := models.ContactViewFrom(row, groupIDs[id])
	return &view, nil
}

// checkUnique enforces the advisory invariants: one contact per lowercased
// name pair, one live holder per lowercased email. selfID is excluded so an
// update does not collide with itself.
func (s *Contacts) checkUnique(tx *gorm.DB, fields models.ContactFields, selfID string) error {
	var count int64
	q := tx.Model(&db.Contact{}).Where("lower(first_name) = ? AND lower(last_name) = ?",
		strings.ToLower(strings.TrimSpace(fields.FirstName)),
		strings.ToLower(strings.TrimSpace(fields.LastName)))
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	if res := q.Count(&count); res.Error != nil {
		return storeErr(res.Error, "check name uniqueness")
	}
	if count > 0 {
		return apperror.Conflict(fmt.Sprintf("contact %q already exists", fields.FullName()))
	}

	if strings.TrimSpace(fields.Email) != "" {
		q := tx.Model(&db.Contact{}).Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(fields.Email)))
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		if res := q.Count(&count); res.Error != nil {
			return storeErr(res.Error, "check email uniqueness")
		}
		if count > 0 {
			return apperror.Conflict(fmt.Sprintf("email address %q is already in use", fields.Email))
		}
	}
	return nil
}

func validateContactFields(fields models.ContactFields) error {
	if strings.TrimSpace(fields.FirstName) == "" && strings.TrimSpace(fields.LastName) == "" {
		return apperror.ValidationFailed("firstName", "first or last name is required")
	}
	if !models.ValidGender(fields.Gender) {
		return apperror.ValidationFailed("gender", fmt.Sprintf("invalid gender: %s", fields.Gender))
	}
	if fields.Email != "" && !emailRe.MatchString(fields.Email) {
		return apperror.ValidationFailed("email", fmt.Sprintf("invalid email address: %s", fields.Email))
	}
	if fields.Phone != "" && !phoneRe.MatchString(fields.Phone) {
		return apperror.ValidationFailed("phone", fmt.Sprintf("invalid phone number: %s", fields.Phone))
	}
	return nil
}

func contactRow(id string, fields models.ContactFields, tags []string, archived bool) db.Contact {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	custom := fields.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}
	customJSON, _ := json.Marshal(custom)

	return db.Contact{
		ID:           id,
		FirstName:    fields.FirstName,
		LastName:     fields.LastName,
		Gender:       fields.Gender,
		Email:        fields.Email,
		Phone:        fields.Phone,
		Mobile:       fields.Mobile,
		Company:      fields.Company,
		Street:       fields.Address.Street,
		City:         fields.Address.City,
		Zip:          fields.Address.Zip,
		Country:      fields.Address.Country,
		Notes:        fields.Notes,
		Tags:         string(tagsJSON),
		CustomFields: string(customJSON),
		Archived:     archived,
	}
}
