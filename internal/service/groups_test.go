package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/db"
)

func TestGroupsCreateDefaults(t *testing.T) {
	svc := NewGroups(testDB(t), testLogger())

	created, err := svc.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)
	assert.Equal(t, "Friends", created.Name)
	assert.Equal(t, "blue", created.Color)
	assert.Empty(t, created.ContactIDs)

	created, err = svc.Create(GroupInput{Name: strp("  Family  "), Color: strp("emerald")})
	require.NoError(t, err)
	assert.Equal(t, "Family", created.Name)
	assert.Equal(t, "emerald", created.Color)
}

func TestGroupsCreateValidation(t *testing.T) {
	svc := NewGroups(testDB(t), testLogger())

	_, err := svc.Create(GroupInput{})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Create(GroupInput{Name: strp("   ")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Create(GroupInput{Name: strp("Friends"), Color: strp("mauve")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestGroupsAddContactIdempotent(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())
	contacts := NewContacts(gdb, testLogger())

	group, err := groups.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)
	contact, err := contacts.Create(contactInput("Max", "Mustermann", ""))
	require.NoError(t, err)

	view, err := groups.AddContact(group.ID, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{contact.ID}, view.ContactIDs)

	// adding again is a no-op, not an error and not a second row
	view, err = groups.AddContact(group.ID, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{contact.ID}, view.ContactIDs)

	var n int64
	gdb.Model(&db.ContactGroup{}).
		Where("group_id = ? AND contact_id = ?", group.ID, contact.ID).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestGroupsAddContactMissingRefs(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())
	contacts := NewContacts(gdb, testLogger())

	group, err := groups.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)
	contact, err := contacts.Create(contactInput("Max", "Mustermann", ""))
	require.NoError(t, err)

	_, err = groups.AddContact("missing", contact.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = groups.AddContact(group.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// no phantom rows from the failed adds
	var n int64
	gdb.Model(&db.ContactGroup{}).Count(&n)
	assert.Zero(t, n)
}

func TestGroupsRemoveContactNoop(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())

	group, err := groups.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)

	view, err := groups.RemoveContact(group.ID, "never-was-a-member")
	require.NoError(t, err)
	assert.Empty(t, view.ContactIDs)

	_, err = groups.RemoveContact("missing", "whatever")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGroupsUpdateReplacesMembers(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())
	contacts := NewContacts(gdb, testLogger())

	a, err := contacts.Create(contactInput("Anna", "Adler", ""))
	require.NoError(t, err)
	b, err := contacts.Create(contactInput("Bernd", "Berger", ""))
	require.NoError(t, err)

	group, err := groups.Create(GroupInput{Name: strp("Friends"), ContactIDs: []string{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, group.ContactIDs)

	// nil leaves membership untouched
	view, err := groups.Update(group.ID, GroupInput{Name: strp("Close Friends")})
	require.NoError(t, err)
	assert.Equal(t, "Close Friends", view.Name)
	assert.Equal(t, []string{a.ID}, view.ContactIDs)

	// non-nil replaces, duplicate input ids collapse
	view, err = groups.Update(group.ID, GroupInput{ContactIDs: []string{b.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, view.ContactIDs)

	// empty slice clears
	view, err = groups.Update(group.ID, GroupInput{ContactIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, view.ContactIDs)
}

func TestGroupsMembershipOnlyUpdateBumpsTimestamp(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())
	contacts := NewContacts(gdb, testLogger())

	contact, err := contacts.Create(contactInput("Max", "Mustermann", ""))
	require.NoError(t, err)
	group, err := groups.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	updated, err := groups.Update(group.ID, GroupInput{ContactIDs: []string{contact.ID}})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(group.UpdatedAt))
}

func TestGroupsDeleteCascades(t *testing.T) {
	gdb := testDB(t)
	groups := NewGroups(gdb, testLogger())
	contacts := NewContacts(gdb, testLogger())
	events := NewEvents(gdb, testLogger())

	group, err := groups.Create(GroupInput{Name: strp("Friends")})
	require.NoError(t, err)
	contact, err := contacts.Create(contactInput("Max", "Mustermann", ""))
	require.NoError(t, err)
	event, err := events.Create(EventInput{Name: strp("Party")})
	require.NoError(t, err)

	_, err = groups.AddContact(group.ID, contact.ID)
	require.NoError(t, err)
	_, err = events.AddGroup(event.ID, group.ID)
	require.NoError(t, err)

	require.NoError(t, groups.Delete(group.ID))

	var n int64
	gdb.Model(&db.ContactGroup{}).Where("group_id = ?", group.ID).Count(&n)
	assert.Zero(t, n)
	gdb.Model(&db.EventGroup{}).Where("group_id = ?", group.ID).Count(&n)
	assert.Zero(t, n)

	// members survive their group
	_, err = contacts.Get(contact.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, groups.Delete(group.ID), apperror.ErrNotFound)
}
