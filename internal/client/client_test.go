package client

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/config"
	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/service"
	"github.com/kontakthub/kontakthub-back/internal/transport"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	l := zap.NewNop().Sugar()
	cfg := &config.Config{Env: config.EnvDevelopment}
	server := transport.New(cfg, gdb,
		service.NewContacts(gdb, l),
		service.NewGroups(gdb, l),
		service.NewEvents(gdb, l),
		service.NewSettings(gdb, l),
		l)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func strp(s string) *string {
	return &s
}

func TestClientHealth(t *testing.T) {
	c := newTestClient(t)

	health, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClientContactRoundTrip(t *testing.T) {
	c := newTestClient(t)

	created, err := c.CreateContact(transport.ContactReq{
		Fields: models.ContactPatch{
			FirstName: strp("Max"),
			LastName:  strp("Mustermann"),
			Email:     strp("max@example.com"),
		},
		Tags: []string{"friends"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Max", created.Fields.FirstName)
	assert.Equal(t, []string{"friends"}, created.Tags)

	got, err := c.GetContact(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "max@example.com", got.Fields.Email)

	updated, err := c.UpdateContact(created.ID, transport.ContactReq{
		Fields: models.ContactPatch{Phone: strp("+49 30 1234567")},
	})
	require.NoError(t, err)
	assert.Equal(t, "max@example.com", updated.Fields.Email)
	assert.Equal(t, "+49 30 1234567", updated.Fields.Phone)

	stats, err := c.ContactStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)

	require.NoError(t, c.DeleteContact(created.ID))

	_, err = c.GetContact(created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestClientErrorMapping(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetGroup("missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = c.CreateGroup(transport.GroupReq{})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = c.CreateContact(transport.ContactReq{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)
	_, err = c.CreateContact(transport.ContactReq{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestClientMembershipAndSettings(t *testing.T) {
	c := newTestClient(t)

	contact, err := c.CreateContact(transport.ContactReq{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)

	group, err := c.CreateGroup(transport.GroupReq{Name: strp("Friends")})
	require.NoError(t, err)

	group, err = c.AddContactToGroup(group.ID, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{contact.ID}, group.ContactIDs)

	event, err := c.CreateEvent(transport.EventReq{
		Name:      strp("Party"),
		EventDate: strp("2026-09-01"),
		Attendees: &transport.AttendeesReq{GroupIDs: []string{group.ID}},
	})
	require.NoError(t, err)

	attendees, err := c.EventAttendees(event.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, contact.ID, attendees[0].ID)

	settings, err := c.UpdateSettings(map[string]interface{}{"theme": "dark"})
	require.NoError(t, err)
	assert.Equal(t, "dark", settings["theme"])

	settings, err = c.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "dark", settings["theme"])
}
