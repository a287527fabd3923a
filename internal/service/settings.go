package service

import (
	"encoding/json"
	stderrors "errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/db"
)

// defaultSettings are the compiled-in values; only overridden keys are
// persisted and reads merge stored values over these.
var defaultSettings = map[string]interface{}{
	"theme":             "light",
	"accentColor":       "blue",
	"defaultEmail":      "",
	"animationsEnabled": true,
	"storageMode":       "server",
}

type Settings struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewSettings(db *gorm.DB, l *zap.SugaredLogger) *Settings {
	return &Settings{
		db:     db,
		logger: l,
	}
}

func (s *Settings) GetAll() (map[string]interface{}, error) {
	rows := make([]db.Setting, 0)
	if res := s.db.Find(&rows); res.Error != nil {
		return nil, storeErr(res.Error, "load settings")
	}

	merged := map[string]interface{}{}
	for key, value := range defaultSettings {
		merged[key] = value
	}
	for _, row := range rows {
		merged[row.Key] = decodeSettingValue(row.Value)
	}
	return merged, nil
}

func (s *Settings) Get(key string) (interface{}, error) {
	row := db.Setting{}
	res := s.db.First(&row, "key = ?", key)
	if res.Error != nil {
		if !stderrors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, storeErr(res.Error, "load setting")
		}
		if value, ok := defaultSettings[key]; ok {
			return value, nil
		}
		return nil, apperror.NotFound("setting", key)
	}
	return decodeSettingValue(row.Value), nil
}

// Update upserts the given keys and returns the full merged map.
func (s *Settings) Update(updates map[string]interface{}) (map[string]interface{}, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range updates {
			encoded, err := encodeSettingValue(value)
			if err != nil {
				return apperror.ValidationFailed(key, "setting value is not serializable")
			}
			row := db.Setting{Key: key, Value: encoded}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row)
			if res.Error != nil {
				return storeErr(res.Error, "upsert setting")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAll()
}

// Strings are stored raw, everything else as JSON; reads try JSON first and
// fall back to the raw string.
func encodeSettingValue(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeSettingValue(stored string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(stored), &value); err != nil {
		return stored
	}
	return value
}
