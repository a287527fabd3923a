package main

import (
	"go.uber.org/fx"

	"github.com/kontakthub/kontakthub-back/internal/config"
	"github.com/kontakthub/kontakthub-back/internal/db"
	"github.com/kontakthub/kontakthub-back/internal/logging"
	"github.com/kontakthub/kontakthub-back/internal/service"
	"github.com/kontakthub/kontakthub-back/internal/transport"
)

func main() {
	fx.New(
		fx.Provide(
			config.NewConfig,
			logging.NewLogger,
			db.NewGormClient,
			service.NewContacts,
			service.NewGroups,
			service.NewEvents,
			service.NewSettings,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(*transport.HTTPServer) {}),
	).Run()
}
