// Package state keeps an in-memory mirror of the server collections and
// notifies subscribers when a collection changes. Mutations go write-through:
// the API call runs first, then the touched collection is refetched and the
// change event fires.
package state

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/transport"
)

type EventType string

const (
	ContactsChanged EventType = "contacts:changed"
	GroupsChanged   EventType = "groups:changed"
	EventsChanged   EventType = "events:changed"
	SettingsChanged EventType = "settings:changed"
)

// API is the slice of the HTTP client the store depends on.
type API interface {
	ListContacts(opts map[string]string) ([]models.ContactView, error)
	CreateContact(req transport.ContactReq) (*models.ContactView, error)
	UpdateContact(id string, req transport.ContactReq) (*models.ContactView, error)
	DeleteContact(id string) error

	ListGroups() ([]models.GroupView, error)
	CreateGroup(req transport.GroupReq) (*models.GroupView, error)
	UpdateGroup(id string, req transport.GroupReq) (*models.GroupView, error)
	DeleteGroup(id string) error
	AddContactToGroup(groupID, contactID string) (*models.GroupView, error)
	RemoveContactFromGroup(groupID, contactID string) (*models.GroupView, error)

	ListEvents(opts map[string]string) ([]models.EventView, error)
	CreateEvent(req transport.EventReq) (*models.EventView, error)
	UpdateEvent(id string, req transport.EventReq) (*models.EventView, error)
	DeleteEvent(id string) error
	AddGroupToEvent(eventID, groupID string) (*models.EventView, error)
	RemoveGroupFromEvent(eventID, groupID string) (*models.EventView, error)
	AddContactToEvent(eventID, contactID string) (*models.EventView, error)
	RemoveContactFromEvent(eventID, contactID string) (*models.EventView, error)

	GetSettings() (map[string]interface{}, error)
	UpdateSettings(updates map[string]interface{}) (map[string]interface{}, error)
}

type Listener func()

type Store struct {
	api    API
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	contacts []models.ContactView
	groups   []models.GroupView
	events   []models.EventView
	settings map[string]interface{}

	subMu  sync.Mutex
	nextID int
	subs   map[EventType]map[int]Listener
}

func NewStore(api API, l *zap.SugaredLogger) *Store {
	return &Store{
		api:      api,
		logger:   l,
		settings: map[string]interface{}{},
		subs:     map[EventType]map[int]Listener{},
	}
}

// Subscribe registers a listener for one event type and returns its
// unsubscribe function. Listeners run synchronously after the mirror is
// updated.
func (s *Store) Subscribe(t EventType, fn Listener) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.subs[t] == nil {
		s.subs[t] = map[int]Listener{}
	}
	id := s.nextID
	s.nextID++
	s.subs[t][id] = fn

	return func() {
		s.subMu.Lock()
		delete(s.subs[t], id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(t EventType) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs[t]))
	for _, fn := range s.subs[t] {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Refresh reloads every collection from the server.
func (s *Store) Refresh() error {
	if err := s.refreshContacts(); err != nil {
		return err
	}
	if err := s.refreshGroups(); err != nil {
		return err
	}
	if err := s.refreshEvents(); err != nil {
		return err
	}
	return s.refreshSettings()
}

func (s *Store) Contacts() []models.ContactView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ContactView, len(s.contacts))
	copy(out, s.contacts)
	return out
}

func (s *Store) Groups() []models.GroupView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.GroupView, len(s.groups))
	copy(out, s.groups)
	return out
}

func (s *Store) Events() []models.EventView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EventView, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Settings() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

////////

func (s *Store) CreateContact(req transport.ContactReq) (*models.ContactView, error) {
	view, err := s.api.CreateContact(req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshContacts()
}

func (s *Store) UpdateContact(id string, req transport.ContactReq) (*models.ContactView, error) {
	view, err := s.api.UpdateContact(id, req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshContacts()
}

// DeleteContact removes the contact and refetches groups and events too,
// since the delete cascades out of their membership lists.
func (s *Store) DeleteContact(id string) error {
	if err := s.api.DeleteContact(id); err != nil {
		return err
	}
	if err := s.refreshContacts(); err != nil {
		return err
	}
	if err := s.refreshGroups(); err != nil {
		return err
	}
	return s.refreshEvents()
}

func (s *Store) CreateGroup(req transport.GroupReq) (*models.GroupView, error) {
	view, err := s.api.CreateGroup(req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshGroups()
}

func (s *Store) UpdateGroup(id string, req transport.GroupReq) (*models.GroupView, error) {
	view, err := s.api.UpdateGroup(id, req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshGroups()
}

func (s *Store) DeleteGroup(id string) error {
	if err := s.api.DeleteGroup(id); err != nil {
		return err
	}
	if err := s.refreshGroups(); err != nil {
		return err
	}
	if err := s.refreshContacts(); err != nil {
		return err
	}
	return s.refreshEvents()
}

func (s *Store) AddContactToGroup(groupID, contactID string) (*models.GroupView, error) {
	view, err := s.api.AddContactToGroup(groupID, contactID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshGroups(); err != nil {
		return nil, err
	}
	return view, s.refreshContacts()
}

func (s *Store) RemoveContactFromGroup(groupID, contactID string) (*models.GroupView, error) {
	view, err := s.api.RemoveContactFromGroup(groupID, contactID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshGroups(); err != nil {
		return nil, err
	}
	return view, s.refreshContacts()
}

func (s *Store) CreateEvent(req transport.EventReq) (*models.EventView, error) {
	view, err := s.api.CreateEvent(req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) UpdateEvent(id string, req transport.EventReq) (*models.EventView, error) {
	view, err := s.api.UpdateEvent(id, req)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) DeleteEvent(id string) error {
	if err := s.api.DeleteEvent(id); err != nil {
		return err
	}
	return s.refreshEvents()
}

func (s *Store) AddGroupToEvent(eventID, groupID string) (*models.EventView, error) {
	view, err := s.api.AddGroupToEvent(eventID, groupID)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) RemoveGroupFromEvent(eventID, groupID string) (*models.EventView, error) {
	view, err := s.api.RemoveGroupFromEvent(eventID, groupID)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) AddContactToEvent(eventID, contactID string) (*models.EventView, error) {
	view, err := s.api.AddContactToEvent(eventID, contactID)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) RemoveContactFromEvent(eventID, contactID string) (*models.EventView, error) {
	view, err := s.api.RemoveContactFromEvent(eventID, contactID)
	if err != nil {
		return nil, err
	}
	return view, s.refreshEvents()
}

func (s *Store) UpdateSettings(updates map[string]interface{}) (map[string]interface{}, error) {
	merged, err := s.api.UpdateSettings(updates)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.settings = merged
	s.mu.Unlock()
	s.emit(SettingsChanged)
	return merged, nil
}

////////

func (s *Store) refreshContacts() error {
	views, err := s.api.ListContacts(nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.contacts = views
	s.mu.Unlock()
	s.emit(ContactsChanged)
	return nil
}

func (s *Store) refreshGroups() error {
	views, err := s.api.ListGroups()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.groups = views
	s.mu.Unlock()
	s.emit(GroupsChanged)
	return nil
}

func (s *Store) refreshEvents() error {
	views, err := s.api.ListEvents(nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.events = views
	s.mu.Unlock()
	s.emit(EventsChanged)
	return nil
}

func (s *Store) refreshSettings() error {
	merged, err := s.api.GetSettings()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = merged
	s.mu.Unlock()
	s.emit(SettingsChanged)
	return nil
}
