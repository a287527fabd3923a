package models

import (
	"encoding/json"
	"time"

	"github.com/kontakthub/kontakthub-back/internal/db"
)

type ContactView struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Fields    ContactFields `json:"fields"`
	GroupIDs  []string      `json:"groupIds"`
	Tags      []string      `json:"tags"`
	Archived  bool          `json:"archived"`
}

type GroupView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	ContactIDs  []string  `json:"contactIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type AttendeeRefs struct {
	GroupIDs   []string `json:"groupIds"`
	ContactIDs []string `json:"contactIds"`
}

type EventView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	EventDate   string       `json:"eventDate"`
	Location    string       `json:"location"`
	Attendees   AttendeeRefs `json:"attendees"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func ContactViewFrom(c db.Contact, groupIDs []string) ContactView {
	tags := []string{}
	if c.Tags != "" {
		_ = json.Unmarshal([]byte(c.Tags), &tags)
	}
	custom := map[string]interface{}{}
	if c.CustomFields != "" {
		_ = json.Unmarshal([]byte(c.CustomFields), &custom)
	}
	if len(custom) == 0 {
		custom = nil
	}
	if groupIDs == nil {
		groupIDs = []string{}
	}

	return ContactView{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Fields: ContactFields{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Gender:    c.Gender,
			Email:     c.Email,
			Phone:     c.Phone,
			Mobile:    c.Mobile,
			Company:   c.Company,
			Address: Address{
				Street:  c.Street,
				City:    c.City,
				Zip:     c.Zip,
				Country: c.Country,
			},
			Notes:  c.Notes,
			Custom: custom,
		},
		GroupIDs: groupIDs,
		Tags:     tags,
		Archived: c.Archived,
	}
}

func GroupViewFrom(g db.Group, contactIDs []string) GroupView {
	if contactIDs == nil {
		contactIDs = []string{}
	}
	return GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Color:       g.Color,
		ContactIDs:  contactIDs,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func EventViewFrom(e db.Event, groupIDs, contactIDs []string) EventView {
	if groupIDs == nil {
		groupIDs = []string{}
	}
	if contactIDs == nil {
		contactIDs = []string{}
	}
	return EventView{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		EventDate:   e.EventDate,
		Location:    e.Location,
		Attendees: AttendeeRefs{
			GroupIDs:   groupIDs,
			ContactIDs: contactIDs,
		},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
