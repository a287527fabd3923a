package importer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/service"
)

type fixture struct {
	contacts *service.Contacts
	groups   *service.Groups
	imp      *Importer
}

func setup(t *testing.T, policy MatchPolicy) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	l := zap.NewNop().Sugar()
	contacts := service.NewContacts(gdb, l)
	groups := service.NewGroups(gdb, l)
	return &fixture{
		contacts: contacts,
		groups:   groups,
		imp:      New(contacts, groups, l, policy),
	}
}

func record(first, last, email string) Record {
	return Record{Fields: models.ContactFields{FirstName: first, LastName: last, Email: email}}
}

func strp(s string) *string {
	return &s
}

func TestSessionInsertsNewRecords(t *testing.T) {
	f := setup(t, MatchNameFirst)

	session := f.imp.Start([]Record{
		record("Max", "Mustermann", "max@example.com"),
		record("Erika", "Musterfrau", ""),
	})

	proposal, err := session.Next()
	require.NoError(t, err)
	assert.Nil(t, proposal)

	summary := session.Summary()
	assert.Len(t, summary.Inserted, 2)
	assert.Empty(t, summary.Merged)
	assert.Empty(t, summary.Skipped)
	assert.Equal(t, summary.Inserted, summary.ImportedIDs)

	views, err := f.contacts.List(service.ContactListOptions{})
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestSessionProposesMergeForNameMatch(t *testing.T) {
	f := setup(t, MatchNameFirst)

	existing, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{
			FirstName: strp("Max"),
			LastName:  strp("Mustermann"),
			Email:     strp("max@example.com"),
		},
	})
	require.NoError(t, err)

	rec := record("Max", "Mustermann", "max.mustermann@work.example")
	rec.Fields.Phone = "+49 30 1234567"
	session := f.imp.Start([]Record{rec})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, existing.ID, proposal.PrimaryID)
	assert.Equal(t, "Max Mustermann", proposal.PrimaryName)

	// both sides filled and different: conflict preselects the existing value
	var emailConflict, phoneConflict *FieldConflict
	for i := range proposal.Conflicts {
		switch proposal.Conflicts[i].Field {
		case "email":
			emailConflict = &proposal.Conflicts[i]
		case "phone":
			phoneConflict = &proposal.Conflicts[i]
		}
	}
	require.NotNil(t, emailConflict)
	assert.Equal(t, KeepExisting, emailConflict.Preselected)
	// only the incoming side has a phone: preselected to take it
	require.NotNil(t, phoneConflict)
	assert.Equal(t, TakeNew, phoneConflict.Preselected)

	require.NoError(t, session.Apply(Resolution{"email": TakeNew}))

	proposal, err = session.Next()
	require.NoError(t, err)
	assert.Nil(t, proposal)

	summary := session.Summary()
	assert.Equal(t, []string{existing.ID}, summary.Merged)
	assert.Empty(t, summary.Inserted)

	merged, err := f.contacts.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "max.mustermann@work.example", merged.Fields.Email)
	assert.Equal(t, "+49 30 1234567", merged.Fields.Phone)
}

func TestSessionSkipLeavesContactUntouched(t *testing.T) {
	f := setup(t, MatchNameFirst)

	existing, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)

	session := f.imp.Start([]Record{record("Max", "Mustermann", "max@example.com")})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)
	session.Skip()

	summary := session.Summary()
	assert.Equal(t, []string{"Max Mustermann"}, summary.Skipped)
	assert.Empty(t, summary.ImportedIDs)

	view, err := f.contacts.Get(existing.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Fields.Email)
}

func TestSessionUnsettledProposalSkipsOnNext(t *testing.T) {
	f := setup(t, MatchNameFirst)

	_, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)

	session := f.imp.Start([]Record{
		record("Max", "Mustermann", ""),
		record("Erika", "Musterfrau", ""),
	})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)

	// walking on without settling counts as a skip
	proposal, err = session.Next()
	require.NoError(t, err)
	assert.Nil(t, proposal)

	summary := session.Summary()
	assert.Equal(t, []string{"Max Mustermann"}, summary.Skipped)
	assert.Len(t, summary.Inserted, 1)
}

func TestSessionDetectsDuplicateWithinBatch(t *testing.T) {
	f := setup(t, MatchNameFirst)

	session := f.imp.Start([]Record{
		record("Max", "Mustermann", ""),
		record("Max", "Mustermann", "max@example.com"),
	})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)

	summary := session.Summary()
	require.Len(t, summary.Inserted, 1)
	assert.Equal(t, summary.Inserted[0], proposal.PrimaryID)
}

func TestSessionMergeMovesEmail(t *testing.T) {
	f := setup(t, MatchNameFirst)

	primary, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)
	other, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{
			FirstName: strp("Maximilian"),
			LastName:  strp("Mustermann"),
			Email:     strp("max@example.com"),
		},
	})
	require.NoError(t, err)

	// matches primary by name and other by email
	session := f.imp.Start([]Record{record("Max", "Mustermann", "max@example.com")})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, primary.ID, proposal.PrimaryID)
	assert.Equal(t, []string{primary.ID, other.ID}, proposal.CandidateIDs)

	require.NoError(t, session.Apply(Resolution{"email": TakeNew}))

	// exactly one contact holds the email afterwards
	mergedPrimary, err := f.contacts.Get(primary.ID)
	require.NoError(t, err)
	assert.Equal(t, "max@example.com", mergedPrimary.Fields.Email)

	strippedOther, err := f.contacts.Get(other.ID)
	require.NoError(t, err)
	assert.Empty(t, strippedOther.Fields.Email)
}

func TestMatchPolicyPicksPrimary(t *testing.T) {
	f := setup(t, MatchEmailFirst)

	_, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)
	byEmail, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{
			FirstName: strp("Maximilian"),
			LastName:  strp("Mustermann"),
			Email:     strp("max@example.com"),
		},
	})
	require.NoError(t, err)

	session := f.imp.Start([]Record{record("Max", "Mustermann", "max@example.com")})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, byEmail.ID, proposal.PrimaryID)
}

func TestAssignGroupCoversInsertedAndMerged(t *testing.T) {
	f := setup(t, MatchNameFirst)

	existing, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)

	group, err := f.groups.Create(service.GroupInput{Name: strp("Import 2026")})
	require.NoError(t, err)

	session := f.imp.Start([]Record{
		record("Erika", "Musterfrau", ""),
		record("Max", "Mustermann", ""),
	})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)
	require.NoError(t, session.Apply(nil))

	proposal, err = session.Next()
	require.NoError(t, err)
	require.Nil(t, proposal)

	require.NoError(t, session.AssignGroup(group.ID))

	view, err := f.groups.Get(group.ID)
	require.NoError(t, err)
	assert.Len(t, view.ContactIDs, 2)
	assert.Contains(t, view.ContactIDs, existing.ID)
}

func TestMergeOffersParsedCustomFields(t *testing.T) {
	f := setup(t, MatchNameFirst)

	existing, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{FirstName: strp("Max"), LastName: strp("Mustermann")},
	})
	require.NoError(t, err)

	records := ParseCSV("Vorname;Nachname;Titel\nMax;Mustermann;Dr.\n")
	require.Len(t, records, 1)

	session := f.imp.Start(records)
	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)

	var title *FieldConflict
	for i := range proposal.Conflicts {
		if proposal.Conflicts[i].Field == "title" {
			title = &proposal.Conflicts[i]
		}
	}
	require.NotNil(t, title)
	assert.Equal(t, "Dr.", title.Incoming)
	assert.Equal(t, TakeNew, title.Preselected)

	require.NoError(t, session.Apply(nil))

	merged, err := f.contacts.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr.", merged.Fields.Custom["title"])
}

func TestMergeCustomFieldConflictKeepsExisting(t *testing.T) {
	f := setup(t, MatchNameFirst)

	existing, err := f.contacts.Create(service.ContactInput{
		Fields: models.ContactPatch{
			FirstName: strp("Max"),
			LastName:  strp("Mustermann"),
			Custom:    map[string]interface{}{"title": "Prof.", "birthday": "1980-01-01"},
		},
	})
	require.NoError(t, err)

	rec := record("Max", "Mustermann", "")
	rec.Fields.Custom = map[string]interface{}{"title": "Dr."}
	session := f.imp.Start([]Record{rec})

	proposal, err := session.Next()
	require.NoError(t, err)
	require.NotNil(t, proposal)

	var title, birthday *FieldConflict
	for i := range proposal.Conflicts {
		switch proposal.Conflicts[i].Field {
		case "title":
			title = &proposal.Conflicts[i]
		case "birthday":
			birthday = &proposal.Conflicts[i]
		}
	}
	require.NotNil(t, title)
	assert.Equal(t, KeepExisting, title.Preselected)
	// only the existing side has a birthday: preselected to keep it
	require.NotNil(t, birthday)
	assert.Equal(t, KeepExisting, birthday.Preselected)

	require.NoError(t, session.Apply(nil))

	merged, err := f.contacts.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Prof.", merged.Fields.Custom["title"])
	assert.Equal(t, "1980-01-01", merged.Fields.Custom["birthday"])
}

func TestSessionRejectsInvalidRecord(t *testing.T) {
	f := setup(t, MatchNameFirst)

	rec := record("Max", "Mustermann", "")
	rec.Fields.Email = "not-an-email"
	session := f.imp.Start([]Record{rec, record("Erika", "Musterfrau", "")})

	proposal, err := session.Next()
	require.NoError(t, err)
	assert.Nil(t, proposal)

	summary := session.Summary()
	assert.Len(t, summary.Inserted, 1)
	require.Len(t, summary.Skipped, 1)
	assert.Contains(t, summary.Skipped[0], "Max Mustermann")
}
