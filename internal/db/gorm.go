package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kontakthub/kontakthub-back/internal/config"
)

type (
	Contact struct {
		ID           string `gorm:"primarykey"`
		FirstName    string
		LastName     string
		Gender       string
		Email        string `gorm:"index"`
		Phone        string
		Mobile       string
		Company      string
		Street       string
		City         string
		Zip          string
		Country      string
		Notes        string
		Tags         string `gorm:"default:'[]'"`
		CustomFields string `gorm:"default:'{}'"`
		Archived     bool
		CreatedAt    time.Time
		UpdatedAt    time.Time
		Groups       []Group `gorm:"many2many:contact_groups;constraint:OnDelete:CASCADE"`
		Events       []Event `gorm:"many2many:event_contacts;constraint:OnDelete:CASCADE"`
	}

	Group struct {
		ID          string `gorm:"primarykey"`
		Name        string `gorm:"not null"`
		Description string
		Color       string `gorm:"default:blue"`
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Contacts    []Contact `gorm:"many2many:contact_groups;constraint:OnDelete:CASCADE"`
		Events      []Event   `gorm:"many2many:event_groups;constraint:OnDelete:CASCADE"`
	}

	Event struct {
		ID          string `gorm:"primarykey"`
		Name        string `gorm:"not null"`
		Description string
		EventDate   string `gorm:"index"`
		Location    string
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Groups      []Group   `gorm:"many2many:event_groups;constraint:OnDelete:CASCADE"`
		Contacts    []Contact `gorm:"many2many:event_contacts;constraint:OnDelete:CASCADE"`
	}

	// Join rows carry nothing beyond their composite key and a creation
	// timestamp. They are created and destroyed only through membership
	// operations on their parents.
	ContactGroup struct {
		ContactID string `gorm:"primaryKey"`
		GroupID   string `gorm:"primaryKey"`
		CreatedAt time.Time
	}

	EventGroup struct {
		EventID   string `gorm:"primaryKey"`
		GroupID   string `gorm:"primaryKey"`
		CreatedAt time.Time
	}

	EventContact struct {
		EventID   string `gorm:"primaryKey"`
		ContactID string `gorm:"primaryKey"`
		CreatedAt time.Time
	}

	Setting struct {
		Key       string `gorm:"primarykey"`
		Value     string
		UpdatedAt time.Time
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		Colorful:                  !cfg.IsProduction(),
		IgnoreRecordNotFoundError: true,
	})

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "create data directory")
			}
		}
		dialector = sqlite.Open(cfg.DBPath + "?_foreign_keys=on")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate registers the explicit join models and creates the schema. The
// join tables get composite primary keys and ON DELETE CASCADE foreign keys
// to both parents.
func Migrate(db *gorm.DB) error {
	joins := []struct {
		model interface{}
		field string
		join  interface{}
	}{
		{&Contact{}, "Groups", &ContactGroup{}},
		{&Group{}, "Contacts", &ContactGroup{}},
		{&Event{}, "Groups", &EventGroup{}},
		{&Group{}, "Events", &EventGroup{}},
		{&Event{}, "Contacts", &EventContact{}},
		{&Contact{}, "Events", &EventContact{}},
	}
	for _, j := range joins {
		if err := db.SetupJoinTable(j.model, j.field, j.join); err != nil {
			return errors.Wrapf(err, "setup join table %T.%s", j.model, j.field)
		}
	}

	if err := db.AutoMigrate(&Contact{}); err != nil {
		return errors.Wrap(err, "migrate contact")
	}
	if err := db.AutoMigrate(&Group{}); err != nil {
		return errors.Wrap(err, "migrate group")
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return errors.Wrap(err, "migrate event")
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return errors.Wrap(err, "migrate setting")
	}

	return nil
}
