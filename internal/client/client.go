// Package client is a typed HTTP client for the KontaktHub API, used by the
// state cache and by integration tooling.
package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kontakthub/kontakthub-back/internal/apperror"
	"github.com/kontakthub/kontakthub-back/internal/models"
	"github.com/kontakthub/kontakthub-back/internal/service"
	"github.com/kontakthub/kontakthub-back/internal/transport"
)

type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

func (c *Client) Health() (*transport.HealthResp, error) {
	out := transport.HealthResp{}
	resp, err := c.http.R().SetResult(&out).Get("/health")
	if err != nil {
		return nil, apperror.Unavailable(err.Error())
	}
	if resp.IsError() {
		return nil, statusErr(resp)
	}
	return &out, nil
}

////////

func (c *Client) ListContacts(opts map[string]string) ([]models.ContactView, error) {
	out := make([]models.ContactView, 0)
	if err := c.get("/contacts", opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetContact(id string) (*models.ContactView, error) {
	out := models.ContactView{}
	if err := c.get("/contacts/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateContact(req transport.ContactReq) (*models.ContactView, error) {
	out := models.ContactView{}
	if err := c.send(http.MethodPost, "/contacts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateContact(id string, req transport.ContactReq) (*models.ContactView, error) {
	out := models.ContactView{}
	if err := c.send(http.MethodPut, "/contacts/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteContact(id string) error {
	return c.send(http.MethodDelete, "/contacts/"+id, nil, nil)
}

func (c *Client) ContactStats() (*service.ContactStats, error) {
	out := service.ContactStats{}
	if err := c.get("/contacts/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

////////

func (c *Client) ListGroups() ([]models.GroupView, error) {
	out := make([]models.GroupView, 0)
	if err := c.get("/groups", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetGroup(id string) (*models.GroupView, error) {
	out := models.GroupView{}
	if err := c.get("/groups/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGroup(req transport.GroupReq) (*models.GroupView, error) {
	out := models.GroupView{}
	if err := c.send(http.MethodPost, "/groups", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateGroup(id string, req transport.GroupReq) (*models.GroupView, error) {
	out := models.GroupView{}
	if err := c.send(http.MethodPut, "/groups/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteGroup(id string) error {
	return c.send(http.MethodDelete, "/groups/"+id, nil, nil)
}

func (c *Client) AddContactToGroup(groupID, contactID string) (*models.GroupView, error) {
	out := models.GroupView{}
	if err := c.send(http.MethodPost, "/groups/"+groupID+"/contacts/"+contactID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveContactFromGroup(groupID, contactID string) (*models.GroupView, error) {
	out := models.GroupView{}
	if err := c.send(http.MethodDelete, "/groups/"+groupID+"/contacts/"+contactID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

////////

func (c *Client) ListEvents(opts map[string]string) ([]models.EventView, error) {
	out := make([]models.EventView, 0)
	if err := c.get("/events", opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetEvent(id string) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.get("/events/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEvent(req transport.EventReq) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodPost, "/events", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEvent(id string, req transport.EventReq) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodPut, "/events/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEvent(id string) error {
	return c.send(http.MethodDelete, "/events/"+id, nil, nil)
}

func (c *Client) EventAttendees(id string) ([]models.ContactView, error) {
	out := make([]models.ContactView, 0)
	if err := c.get("/events/"+id+"/attendees", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddGroupToEvent(eventID, groupID string) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodPost, "/events/"+eventID+"/groups/"+groupID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveGroupFromEvent(eventID, groupID string) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodDelete, "/events/"+eventID+"/groups/"+groupID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddContactToEvent(eventID, contactID string) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodPost, "/events/"+eventID+"/contacts/"+contactID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveContactFromEvent(eventID, contactID string) (*models.EventView, error) {
	out := models.EventView{}
	if err := c.send(http.MethodDelete, "/events/"+eventID+"/contacts/"+contactID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

////////

func (c *Client) GetSettings() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.get("/settings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateSettings(updates map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.send(http.MethodPut, "/settings", updates, &out); err != nil {
		return nil, err
	}
	return out, nil
}

////////

func (c *Client) get(path string, query map[string]string, out interface{}) error {
	req := c.http.R().SetResult(out)
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return apperror.Unavailable(err.Error())
	}
	if resp.IsError() {
		return statusErr(resp)
	}
	return nil
}

func (c *Client) send(method, path string, body, out interface{}) error {
	req := c.http.R()
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return apperror.Unavailable(err.Error())
	}
	if resp.IsError() {
		return statusErr(resp)
	}
	return nil
}

func statusErr(resp *resty.Response) error {
	msg := fmt.Sprintf("%s %s: %s", resp.Request.Method, resp.Request.URL, resp.Status())
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: msg}
	case http.StatusBadRequest:
		return &apperror.AppError{Err: apperror.ErrValidation, Message: msg}
	case http.StatusConflict:
		return apperror.Conflict(msg)
	case http.StatusServiceUnavailable:
		return apperror.Unavailable(msg)
	default:
		return fmt.Errorf("unexpected response: %s", msg)
	}
}
