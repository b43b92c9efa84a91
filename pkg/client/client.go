package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labops/rigctl/internal/activity"
	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/store"
)

// Client provides HTTP client functionality to communicate with a rigctl server
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Token   string // bearer token from a prior Login
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new rigctl API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the bearer token currently in use, if any.
func (c *Client) Token() string { return c.token }

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/login", body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// ListSetups returns every setup record, or only the named ones.
func (c *Client) ListSetups(ctx context.Context, setups ...string) ([]control.SetupRecord, error) {
	path := "/setups"
	if len(setups) > 0 {
		path += "?setups=" + url.QueryEscape(strings.Join(setups, ","))
	}
	var recs []control.SetupRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// GetSetup returns one setup record.
func (c *Client) GetSetup(ctx context.Context, setup string) (control.SetupRecord, error) {
	var rec control.SetupRecord
	err := c.doJSON(ctx, http.MethodGet, "/setups/"+url.PathEscape(setup), nil, &rec)
	return rec, err
}

// UpdateSetup applies a field patch and optional status transition.
func (c *Client) UpdateSetup(ctx context.Context, setup string, fields control.FieldPatch, status string) (control.SetupRecord, error) {
	body := map[string]any{"fields": fields, "status": status}
	var rec control.SetupRecord
	err := c.doJSON(ctx, http.MethodPut, "/setups/"+url.PathEscape(setup), body, &rec)
	return rec, err
}

// BulkUpdateSetups applies the update to several setups at once.
func (c *Client) BulkUpdateSetups(ctx context.Context, setups []string, fields control.FieldPatch, status string) (control.BulkResult, error) {
	body := map[string]any{"setups": setups, "fields": fields, "status": status}
	var res control.BulkResult
	err := c.doJSON(ctx, http.MethodPut, "/setups", body, &res)
	return res, err
}

// SendHeartbeat reports a setup's live metrics.
func (c *Client) SendHeartbeat(ctx context.Context, setup string, hb control.Heartbeat) error {
	return c.doJSON(ctx, http.MethodPost, "/setups/"+url.PathEscape(setup)+"/heartbeat", hb, nil)
}

// ReportFault moves a setup to exit with a fault description.
func (c *Client) ReportFault(ctx context.Context, setup, state string) (control.SetupRecord, error) {
	var rec control.SetupRecord
	err := c.doJSON(ctx, http.MethodPost, "/setups/"+url.PathEscape(setup)+"/fault",
		map[string]string{"state": state}, &rec)
	return rec, err
}

// Reboot asks the server to reboot the setup machine.
func (c *Client) Reboot(ctx context.Context, setup string) error {
	return c.doJSON(ctx, http.MethodPost, "/setups/"+url.PathEscape(setup)+"/reboot", struct{}{}, nil)
}

// GetActivity fetches a windowed behavioral snapshot. window is a
// second count ("60") or "all".
func (c *Client) GetActivity(ctx context.Context, setup, window string) (activity.Snapshot, error) {
	var snap activity.Snapshot
	path := "/setups/" + url.PathEscape(setup) + "/activity?window=" + url.QueryEscape(window)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &snap)
	return snap, err
}

// ListTasks returns the task catalog.
func (c *Client) ListTasks(ctx context.Context) ([]store.Task, error) {
	var tasks []store.Task
	err := c.doJSON(ctx, http.MethodGet, "/tasks", nil, &tasks)
	return tasks, err
}

// CreateTask adds a task to the catalog.
func (c *Client) CreateTask(ctx context.Context, t store.Task) (store.Task, error) {
	var created store.Task
	err := c.doJSON(ctx, http.MethodPost, "/tasks", t, &created)
	return created, err
}

// UpdateTask rewrites an existing catalog task. The task's ID selects
// the row to update.
func (c *Client) UpdateTask(ctx context.Context, t store.Task) (store.Task, error) {
	var updated store.Task
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/tasks/%d", t.ID), t, &updated)
	return updated, err
}

// DeleteTask removes a task from the catalog.
func (c *Client) DeleteTask(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", id), nil, nil)
}

// ListUsers returns all user accounts. Password hashes are never
// included in the response.
func (c *Client) ListUsers(ctx context.Context) ([]store.User, error) {
	var users []store.User
	err := c.doJSON(ctx, http.MethodGet, "/users", nil, &users)
	return users, err
}

// CreateUser adds a user account.
func (c *Client) CreateUser(ctx context.Context, username, password, role string) error {
	body := map[string]string{"username": username, "password": password, "role": role}
	return c.doJSON(ctx, http.MethodPost, "/users", body, nil)
}

// DeleteUser removes a user account.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(username), nil, nil)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
