package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kontakthub/kontakthub-back/internal/config"
)

func NewLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, errors.Wrap(err, "build zap logger")
	}
	return logger.Sugar(), nil
}
