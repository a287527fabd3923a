package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/config"
	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/service"
)

type (
	ContactReq struct {
		ID       string              `json:"id" validate:"omitempty,max=64"`
		Fields   models.ContactPatch `json:"fields"`
		GroupIDs []string            `json:"groupIds"`
		Tags     []string            `json:"tags" validate:"omitempty,dive,max=100"`
		Archived *bool               `json:"archived"`
	}

	GroupReq struct {
		ID          string   `json:"id" validate:"omitempty,max=64"`
		Name        *string  `json:"name" validate:"omitempty,max=100"`
		Description *string  `json:"description" validate:"omitempty,max=500"`
		Color       *string  `json:"color" validate:"omitempty,max=30"`
		ContactIDs  []string `json:"contactIds"`
	}

	AttendeesReq struct {
		GroupIDs   []string `json:"groupIds"`
		ContactIDs []string `json:"contactIds"`
	}

	EventReq struct {
		ID          string        `json:"id" validate:"omitempty,max=64"`
		Name        *string       `json:"name" validate:"omitempty,max=200"`
		Description *string       `json:"description" validate:"omitempty,max=500"`
		EventDate   *string       `json:"eventDate" validate:"omitempty,max=10"`
		Location    *string       `json:"location" validate:"omitempty,max=200"`
		Attendees   *AttendeesReq `json:"attendees"`
	}

	ErrorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field,omitempty"`
	}

	HealthResp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Database  string `json:"database"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		db       *gorm.DB
		contacts *service.Contacts
		groups   *service.Groups
		events   *service.Events
		settings *service.Settings
		logger   *zap.SugaredLogger
		redact   bool
	}
)

func New(
	cfg *config.Config,
	db *gorm.DB,
	contacts *service.Contacts,
	groups *service.Groups,
	events *service.Events,
	settings *service.Settings,
	logger *zap.SugaredLogger,
) *HTTPServer {
	return &HTTPServer{
		db:       db,
		contacts: contacts,
		groups:   groups,
		events:   events,
		settings: settings,
		logger:   logger,
		redact:   cfg.IsProduction(),
	}
}

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	db *gorm.DB,
	contacts *service.Contacts,
	groups *service.Groups,
	events *service.Events,
	settings *service.Settings,
	logger *zap.SugaredLogger,
) *HTTPServer {
	instance := New(cfg, db, contacts, groups, events, settings, logger)

	e := instance.Router()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return instance
}

// Router builds the echo instance with all routes and middleware; split out
// so tests can serve it without the fx lifecycle.
func (s *HTTPServer) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	api := e.Group("/api/v1")

	api.GET("/health", s.Health)

	contactG := api.Group("/contacts")
	contactG.GET("", s.ContactList)
	contactG.GET("/stats", s.ContactStats)
	contactG.GET("/:id", s.ContactGet)
	contactG.POST("", s.ContactCreate)
	contactG.PUT("/:id", s.ContactUpdate)
	contactG.DELETE("/:id", s.ContactDelete)

	groupG := api.Group("/groups")
	groupG.GET("", s.GroupList)
	groupG.GET("/:id", s.GroupGet)
	groupG.POST("", s.GroupCreate)
	groupG.PUT("/:id", s.GroupUpdate)
	groupG.DELETE("/:id", s.GroupDelete)
	groupG.POST("/:id/contacts/:cid", s.GroupAddContact)
	groupG.DELETE("/:id/contacts/:cid", s.GroupRemoveContact)

	eventG := api.Group("/events")
	eventG.GET("", s.EventList)
	eventG.GET("/:id", s.EventGet)
	eventG.GET("/:id/attendees", s.EventAttendees)
	eventG.POST("", s.EventCreate)
	eventG.PUT("/:id", s.EventUpdate)
	eventG.DELETE("/:id", s.EventDelete)
	eventG.POST("/:id/groups/:gid", s.EventAddGroup)
	eventG.DELETE("/:id/groups/:gid", s.EventRemoveGroup)
	eventG.POST("/:id/contacts/:cid", s.EventAddContact)
	eventG.DELETE("/:id/contacts/:cid", s.EventRemoveContact)

	settingsG := api.Group("/settings")
	settingsG.GET("", s.SettingsGet)
	settingsG.PUT("", s.SettingsUpdate)
	settingsG.GET("/:key", s.SettingGetOne)

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = s.errorHandler

	return e
}

func (s *HTTPServer) Health(c echo.Context) error {
	resp := HealthResp{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Database:  "connected",
	}
	var one int
	if res := s.db.Raw("SELECT 1").Scan(&one); res.Error != nil {
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		return c.JSON(http.StatusServiceUnavailable, &resp)
	}
	return c.JSON(http.StatusOK, &resp)
}

////////

func (s *HTTPServer) ContactList(c echo.Context) error {
	opts := service.ContactListOptions{
		Search:    c.QueryParam("search"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	}
	if v := c.QueryParam("archived"); v != "" {
		archived := v == "true"
		opts.Archived = &archived
	}

	views, err := s.contacts.List(opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) ContactStats(c echo.Context) error {
	stats, err := s.contacts.Stats()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) ContactGet(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	view, err := s.contacts.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) ContactCreate(c echo.Context) error {
	req := ContactReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.contacts.Create(contactInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *HTTPServer) ContactUpdate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	req := ContactReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.contacts.Update(id, contactInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) ContactDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.contacts.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

////////

func (s *HTTPServer) GroupList(c echo.Context) error {
	views, err := s.groups.List(c.QueryParam("sortBy"), c.QueryParam("sortOrder"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) GroupGet(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	view, err := s.groups.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) GroupCreate(c echo.Context) error {
	req := GroupReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.groups.Create(groupInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *HTTPServer) GroupUpdate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	req := GroupReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.groups.Update(id, groupInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) GroupDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.groups.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) GroupAddContact(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	cid, err := GetParam(c, "cid")
	if err != nil {
		return err
	}
	view, err := s.groups.AddContact(id, cid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) GroupRemoveContact(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	cid, err := GetParam(c, "cid")
	if err != nil {
		return err
	}
	view, err := s.groups.RemoveContact(id, cid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

////////

func (s *HTTPServer) EventList(c echo.Context) error {
	views, err := s.events.List(service.EventListOptions{
		Filter:    c.QueryParam("filter"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) EventGet(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	view, err := s.events.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) EventAttendees(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	attendees, err := s.events.Attendees(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attendees)
}

func (s *HTTPServer) EventCreate(c echo.Context) error {
	req := EventReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.events.Create(eventInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *HTTPServer) EventUpdate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	req := EventReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	view, err := s.events.Update(id, eventInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) EventDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.events.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) EventAddGroup(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	gid, err := GetParam(c, "gid")
	if err != nil {
		return err
	}
	view, err := s.events.AddGroup(id, gid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) EventRemoveGroup(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	gid, err := GetParam(c, "gid")
	if err != nil {
		return err
	}
	view, err := s.events.RemoveGroup(id, gid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) EventAddContact(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	cid, err := GetParam(c, "cid")
	if err != nil {
		return err
	}
	view, err := s.events.AddContact(id, cid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) EventRemoveContact(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	cid, err := GetParam(c, "cid")
	if err != nil {
		return err
	}
	view, err := s.events.RemoveContact(id, cid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

////////

func (s *HTTPServer) SettingsGet(c echo.Context) error {
	settings, err := s.settings.GetAll()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *HTTPServer) SettingsUpdate(c echo.Context) error {
	updates := map[string]interface{}{}
	if err := c.Bind(&updates); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	settings, err := s.settings.Update(updates)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *HTTPServer) SettingGetOne(c echo.Context) error {
	key, err := GetParam(c, "key")
	if err != nil {
		return err
	}
	value, err := s.settings.Get(key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{key: value})
}

////////

func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		_ = c.JSON(he.Code, &ErrorResp{Error: http.StatusText(he.Code), Message: fmt.Sprintf("%v", he.Message)})
		return
	}

	resp := ErrorResp{}
	var ae *apperror.AppError
	if stderrors.As(err, &ae) {
		resp.Field = ae.Field
	}

	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, apperror.ErrNotFound) || stderrors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
		resp.Error = "Not found"
	case stderrors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		resp.Error = "Validation error"
	case stderrors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		resp.Error = "Constraint violation"
	case stderrors.Is(err, apperror.ErrUnavailable):
		status = http.StatusServiceUnavailable
		resp.Error = "Database busy"
	default:
		resp.Error = "Internal server error"
	}

	resp.Message = err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		if s.redact {
			resp.Message = "An error occurred"
		}
	}

	_ = c.JSON(status, &resp)
}

////////

func contactInput(req ContactReq) service.ContactInput {
	return service.ContactInput{
		ID:       req.ID,
		Fields:   req.Fields,
		GroupIDs: req.GroupIDs,
		Tags:     req.Tags,
		Archived: req.Archived,
	}
}

func groupInput(req GroupReq) service.GroupInput {
	return service.GroupInput{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		ContactIDs:  req.ContactIDs,
	}
}

func eventInput(req EventReq) service.EventInput {
	in := service.EventInput{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		EventDate:   req.EventDate,
		Location:    req.Location,
	}
	if req.Attendees != nil {
		in.GroupIDs = req.Attendees.GroupIDs
		in.ContactIDs = req.Attendees.ContactIDs
	}
	return in
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}
