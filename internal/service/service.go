package service

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
)

// storeErr normalizes backend failures: a locked/busy store becomes a
// retryable Unavailable, everything else is wrapped as-is.
func storeErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "database is locked") || strings.Contains(lower, "sqlite_busy") {
		return apperror.Unavailable("store busy, try again")
	}
	return errors.Wrap(err, msg)
}

// touch bumps a parent entity's updated_at after a membership change.
func touch(tx *gorm.DB, model interface{}, id string) error {
	return tx.Model(model).Where("id = ?", id).Update("updated_at", time.Now().UTC()).Error
}
