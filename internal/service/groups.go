package service

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/models"
)

type Groups struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewGroups(db *gorm.DB, l *zap.SugaredLogger) *Groups {
	return &Groups{
		db:     db,
		logger: l,
	}
}

type GroupInput struct {
	ID          string
	Name        *string
	Description *string
	Color       *string
	ContactIDs  []string // nil leaves memberships unchanged, non-nil replaces
}

var groupSortFields = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *Groups) List(sortBy, sortOrder string) ([]models.GroupView, error) {
	field, ok := groupSortFields[sortBy]
	if !ok {
		field = "name"
	}
	order := "ASC"
	if sortOrder == "desc" {
		order = "DESC"
	}

	rows := make([]db.Group, 0)
	if res := s.db.Order(field + " " + order).Find(&rows); res.Error != nil {
		return nil, storeErr(res.Error, "list groups")
	}

	views := make([]models.GroupView, len(rows))
	for i := range rows {
		contactIDs, err := s.contactIDs(s.db, rows[i].ID)
		if err != nil {
			return nil, err
		}
		views[i] = models.GroupViewFrom(rows[i], contactIDs)
	}
	return views, nil
}

func (s *Groups) Get(id string) (*models.GroupView, error) {
	return s.getView(s.db, id)
}

func (s *Groups) Create(in GroupInput) (*models.GroupView, error) {
	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if err := validateGroupName(name); err != nil {
		return nil, err
	}

	color := models.DefaultGroupColor
	if in.Color != nil && *in.Color != "" {
		color = *in.Color
	}
	if !models.ValidGroupColor(color) {
		return nil, apperror.ValidationFailed("color", fmt.Sprintf("invalid group color: %s", color))
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	model := db.Group{
		ID:    id,
		Name:  name,
		Color: color,
	}
	if in.Description != nil {
		model.Description = *in.Description
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Create(&model); res.Error != nil {
			return storeErr(res.Error, "create group")
		}
		return s.replaceContactRows(tx, id, in.ContactIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.getView(s.db, id)
}

func (s *Groups) Update(id string, in GroupInput) (*models.GroupView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing := db.Group{}
		if res := tx.First(&existing, "id = ?", id); res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				return apperror.NotFound("group", id)
			}
			return storeErr(res.Error, "load group")
		}

		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if err := validateGroupName(name); err != nil {
				return err
			}
			updates["name"] = name
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Color != nil {
			if !models.ValidGroupColor(*in.Color) {
				return apperror.ValidationFailed("color", fmt.Sprintf("invalid group color: %s", *in.Color))
			}
			updates["color"] = *in.Color
		}
		if len(updates) > 0 {
			if res := tx.Model(&db.Group{}).Where("id = ?", id).Updates(updates); res.Error != nil {
				return storeErr(res.Error, "update group")
			}
		}

		if err := s.replaceContactRows(tx, id, in.ContactIDs); err != nil {
			return err
		}
		// a membership-only update still counts as an update
		if in.ContactIDs != nil && len(updates) == 0 {
			return touch(tx, &db.Group{}, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, id)
}

func (s *Groups) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		existing := db.Group{}
		if res := tx.First(&existing, "id = ?", id); res.Error != nil {
			if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
				return apperror.NotFound("group", id)
			}
			return storeErr(res.Error, "load group")
		}

		if res := tx.Where("group_id = ?", id).Delete(&db.ContactGroup{}); res.Error != nil {
			return storeErr(res.Error, "cascade contact_groups")
		}
		if res := tx.Where("group_id = ?", id).Delete(&db.EventGroup{}); res.Error != nil {
			return storeErr(res.Error, "cascade event_groups")
		}
		if res := tx.Delete(&db.Group{}, "id = ?", id); res.Error != nil {
			return storeErr(res.Error, "delete group")
		}
		return nil
	})
}

// AddContact inserts the membership row if absent. Adding an existing
// membership is a no-op, not an error.
func (s *Groups) AddContact(groupID, contactID string) (*models.GroupView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Group{}, "group", groupID); err != nil {
			return err
		}
		if err := requireExists(tx, &db.Contact{}, "contact", contactID); err != nil {
			return err
		}

		row := db.ContactGroup{ContactID: contactID, GroupID: groupID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add contact to group")
		}
		return touch(tx, &db.Group{}, groupID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, groupID)
}

// RemoveContact drops the membership row. Removing a membership that does
// not exist is a no-op.
func (s *Groups) RemoveContact(groupID, contactID string) (*models.GroupView, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &db.Group{}, "group", groupID); err != nil {
			return err
		}

		res := tx.Where("contact_id = ? AND group_id = ?", contactID, groupID).Delete(&db.ContactGroup{})
		if res.Error != nil {
			return storeErr(res.Error, "remove contact from group")
		}
		return touch(tx, &db.Group{}, groupID)
	})
	if err != nil {
		return nil, err
	}
	return s.getView(s.db, groupID)
}

////////

func (s *Groups) replaceContactRows(tx *gorm.DB, groupID string, contactIDs []string) error {
	if contactIDs == nil {
		return nil
	}
	if res := tx.Where("group_id = ?", groupID).Delete(&db.ContactGroup{}); res.Error != nil {
		return storeErr(res.Error, "clear group contacts")
	}
	for _, contactID := range contactIDs {
		if err := requireExists(tx, &db.Contact{}, "contact", contactID); err != nil {
			return err
		}
		row := db.ContactGroup{ContactID: contactID, GroupID: groupID}
		if res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row); res.Error != nil {
			return storeErr(res.Error, "add contact to group")
		}
	}
	return nil
}

func (s *Groups) contactIDs(tx *gorm.DB, groupID string) ([]string, error) {
	joins := make([]db.ContactGroup, 0)
	if res := tx.Where("group_id = ?", groupID).Order("created_at").Find(&joins); res.Error != nil {
		return nil, storeErr(res.Error, "load group contacts")
	}
	ids := make([]string, len(joins))
	for i := range joins {
		ids[i] = joins[i].ContactID
	}
	return ids, nil
}

func (s *Groups) getView(tx *gorm.DB, id string) (*models.GroupView, error) {
	row := db.Group{}
	if res := tx.First(&row, "id = ?", id); res.Error != nil {
		if stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("group", id)
		}
		return nil, storeErr(res.Error, "load group")
	}
	contactIDs, err := s.contactIDs(tx, id)
	if err != nil {
		return nil, err
	}
	view := models.GroupViewFrom(row, contactIDs)
	return &view, nil
}

func validateGroupName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "group name is required")
	}
	if len(name) > 100 {
		return apperror.ValidationFailed("name", "group name is too long (max 100 characters)")
	}
	return nil
}

func requireExists(tx *gorm.DB, model interface{}, resource, id string) error {
	var count int64
	if res := tx.Model(model).Where("id = ?", id).Count(&count); res.Error != nil {
		return storeErr(res.Error, "check "+resource)
	}
	if count == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
