package service

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/models"
)

const eventDateLayout = "2006-01-02"

type Events struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewEvents(db *gorm.DB, l *zap.SugaredLogger) *Events {
	return &Events{
		db:     db,
		logger: l,
	}
}

type EventInput struct {
	ID          string
	Name        *string
	Description *string
	EventDate   *string
	Location    *string
	GroupIDs    []string // nil leaves invited groups unchanged, non-nil replaces
	ContactIDs  []string // nil leaves invited contacts unchanged, non-nil replaces
}

type EventListOptions struct {
	Filter    string // past | future | today
	SortBy    string
	SortOrder string
}

var eventSortFields = map[string]string{
	"name":       "name",
	"event_date": "event_date",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *Events) List(opts EventListOptions) ([]models.EventView, error) {
	field, ok := eventSortFields[opts.SortBy]
	if !ok {
		field = "event_date"
	}
	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	today := time.Now().Format(eventDateLayout)
	q := s.db.Order(field + " " + order)
	switch opts.Filter {
	case "past":
		q = q.Where("event_date < ?", today)
	case "future":
		q = q.Where("event_date >= ?", today)
	case "today":
		q = q.Where("event_date = ?", today)
	}

	rows := make([]db.Event, 0)
	if res := q.Find(&rows); res.Error != nil {
		return nil, storeErr(res.Error, "list events")
	}

	views := make([]models.EventView, len(rows))
	for i := range rows {
		groupIDs, contactIDs, err := s.attendeeRefs(s.db, rows[i].ID)
		if err != nil {
			return nil, err
		}
		views[i] = models.EventViewFrom(rows[i], groupIDs, contactIDs)
	}
	return views, nil
}

func (s *Events) Get(id string) (*models.EventView, error) {
	return s.getView(s.db, id)
}

func (s *Events) Create(in EventInput) (*models.EventView, error) {
	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if name == "" {
		return nil, apperror.ValidationFailed("name", "event name is required")
	}

	model := db.Event{
		ID:   in.ID,
		Name: name,
	}
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if in.Description != nil {
		model.Description = *in.Description
	}
	if in.Location != nil {
		model.Location = *in.Location
	}
	if in.EventDate != nil {
		date, err := validEventDate(*in.EventDate)
		if err != nil {
			return nil, err
		}
		model.EventDate = date
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Create(&model); res.Error != nil {
			return storeErr(res.Error, "create event")
		}
		if err := s.replaceGroupRows(tx, model.ID, in.GroupIDs); err != nil {
			return err
		}
		return s.replaceContactRows(tx, model.ID, in.ContactIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.getView(s.db, model.ID)
}

func (s *Events) Update(id string, in EventInput) (*models.EventView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing := db.Event{}
		if res := tx.First(&existing, "id = ?", id); res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				return apperror.NotFound("event", id)
			}
			return storeErr(res.Error, "load event")
		}

		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperror.ValidationFailed("name", "event name is required")
			}
			updates["name"] = name
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Location != nil {
			updates["location"] = *in.Location
		}
		if in.EventDate != nil {
			date, err := validEventDate(*in.EventDate)
			if err != nil {
				return err
			}
			updates["event_date"] = date
		}
		if len(updates) > 0 {
			if res := tx.Model(&db.Event{}).Where("id = ?", id).Updates(updates); res.Error != nil {
				return storeErr(res.Error, "update event")
			}
		}

		if err := s.replaceGroupRows(tx, id, in.GroupIDs); err != nil {
			return err
		}
		if err := s.replaceContactRows(tx, id, in.ContactIDs); err != nil {
			return err
		}
		// a membership-only update still counts as an update
		if (in.GroupIDs != nil || in.ContactIDs != nil) && len(updates) == 0 {
			return touch(tx, &db.Event{}, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, id)
}

func (s *Events) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		existing := db.Event{}
		if res := tx.First(&existing, "id = ?", id); res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				return apperror.NotFound("event", id)
			}
			return storeErr(res.Error, "load event")
		}

		if res := tx.Where("event_id = ?", id).Delete(&db.EventGroup{}); res.Error != nil {
			return storeErr(res.Error, "cascade event_groups")
		}
		if res := tx.Where("event_id = ?", id).Delete(&db.EventContact{}); res.Error != nil {
			return storeErr(res.Error, "cascade event_contacts")
		}
		if res := tx.Delete(&db.Event{}, "id = ?", id); res.Error != nil {
			return storeErr(res.Error, "delete event")
		}
		return nil
	})
}

func (s *Events) AddGroup(eventID, groupID string) (*models.EventView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Event{}, "event", eventID); err != nil {
			return err
		}
		if err := requireExists(tx, &db.Group{}, "group", groupID); err != nil {
			return err
		}
		row := db.EventGroup{EventID: eventID, GroupID: groupID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add group to event")
		}
		return touch(tx, &db.Event{}, eventID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, eventID)
}

func (s *Events) RemoveGroup(eventID, groupID string) (*models.EventView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Event{}, "event", eventID); err != nil {
			return err
		}
		res := tx.Where("event_id = ? AND group_id = ?", eventID, groupID).Delete(&db.EventGroup{})
		if res.Error != nil {
			return storeErr(res.Error, "remove group from event")
		}
		return touch(tx, &db.Event{}, eventID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, eventID)
}

func (s *Events) AddContact(eventID, contactID string) (*models.EventView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Event{}, "event", eventID); err != nil {
			return err
		}
		if err := requireExists(tx, &db.Contact{}, "contact", contactID); err != nil {
			return err
		}
		row := db.EventContact{EventID: eventID, ContactID: contactID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add contact to event")
		}
		return touch(tx, &db.Event{}, eventID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, eventID)
}

func (s *Events) RemoveContact(eventID, contactID string) (*models.EventView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Event{}, "event", eventID); err != nil {
			return err
		}
		res := tx.Where("event_id = ? AND contact_id = ?", eventID, contactID).Delete(&db.EventContact{})
		if res.Error != nil {
			return storeErr(res.Error, "remove contact from event")
		}
		return touch(tx, &db.Event{}, eventID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, eventID)
}

// Attendees computes the deduplicated union of the members of every invited
// group and the individually invited contacts. A group or contact that has
// vanished contributes nothing; that is not an error.
func (s *Events) Attendees(eventID string) ([]models.ContactView, error) {
	if err := requireExists(s.db, &db.Event{}, "event", eventID); err != nil {
		return nil, err
	}
	groupIDs, contactIDs, err := s.attendeeRefs(s.db, eventID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	ordered := make([]string, 0)
	for _, groupID := range groupIDs {
		members := make([]db.ContactGroup, 0)
		if res := s.db.Where("group_id = ?", groupID).Order("created_at").Find(&members); res.Error != nil {
			return nil, storeErr(res.Error, "load group members")
		}
		for _, m := range members {
			if !seen[m.ContactID] {
				seen[m.ContactID] = true
				ordered = append(ordered, m.ContactID)
			}
		}
	}
	for _, contactID := range contactIDs {
		if !seen[contactID] {
			seen[contactID] = true
			ordered = append(ordered, contactID)
		}
	}

	attendees := make([]models.ContactView, 0, len(ordered))
	for _, contactID := range ordered {
		row := db.Contact{}
		res := s.db.First(&row, "id = ?", contactID)
		if res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, storeErr(res.Error, "load attendee")
		}
		attendees = append(attendees, models.ContactViewFrom(row, nil))
	}
	return attendees, nil
}

////////

func (s *Events) replaceGroupRows(tx *gorm.DB, eventID string, groupIDs []string) error {
	if groupIDs == nil {
		return nil
	}
	if res := tx.Where("event_id = ?", eventID).Delete(&db.EventGroup{}); res.Error != nil {
		return storeErr(res.Error, "clear event groups")
	}
	for _, groupID := range groupIDs {
		if err := requireExists(tx, &db.Group{}, "group", groupID); err != nil {
			return err
		}
		row := db.EventGroup{EventID: eventID, GroupID: groupID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add group to event")
		}
	}
	return nil
}

func (s *Events) replaceContactRows(tx *gorm.DB, eventID string, contactIDs []string) error {
	if contactIDs == nil {
		return nil
	}
	if res := tx.Where("event_id = ?", eventID).Delete(&db.EventContact{}); res.Error != nil {
		return storeErr(res.Error, "clear event contacts")
	}
	for _, contactID := range contactIDs {
		if err := requireExists(tx, &db.Contact{}, "contact", contactID); err != nil {
			return err
		}
		row := db.EventContact{EventID: eventID, ContactID: contactID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add contact to event")
		}
	}
	return nil
}

func (s *Events) attendeeRefs(tx *gorm.DB, eventID string) ([]string, []string, error) {
	groupJoins := make([]db.EventGroup, 0)
	if res := tx.Where("event_id = ?", eventID).Order("created_at").Find(&groupJoins); res.Error != nil {
		return nil, nil, storeErr(res.Error, "load event groups")
	}
	contactJoins := make([]db.EventContact, 0)
	if res := tx.Where("event_id = ?", eventID).Order("created_at").Find(&contactJoins); res.Error != nil {
		return nil, nil, storeErr(res.Error, "load event contacts")
	}

	groupIDs := make([]string, len(groupJoins))
	for i := range groupJoins {
		groupIDs[i] = groupJoins[i].GroupID
	}
	contactIDs := make([]string, len(contactJoins))
	for i := range contactJoins {
		contactIDs[i] = contactJoins[i].ContactID
	}
	return groupIDs, contactIDs, nil
}

func (s *Events) getView(tx *gorm.DB, id string) (*models.EventView, error) {
	row := db.Event{}
	if res := tx.First(&row, "id = ?", id); res.Error != nil {
		if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, storeErr(res.Error, "load event")
	}
	groupIDs, contactIDs, err := s.attendeeRefs(tx, id)
	if err != nil {
		return nil, err
	}
	view := models.EventViewFrom(row, groupIDs, contactIDs)
	return &view, nil
}

func validEventDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", nil
	}
	if _, err := time.Parse(eventDateLayout, date); err != nil {
		return "", apperror.ValidationFailed("eventDate", fmt.Sprintf("invalid event date: %s", date))
	}
	return date, nil
}
