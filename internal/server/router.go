package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/labops/rigctl/internal/activity"
	"github.com/labops/rigctl/internal/auth"
	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/metrics"
	"github.com/labops/rigctl/internal/reboot"
	"github.com/labops/rigctl/internal/store"
)

// TaskCatalog is the task-catalog slice of the store the router needs.
type TaskCatalog interface {
	ListTasks(ctx context.Context) ([]store.Task, error)
	SaveTask(ctx context.Context, t store.Task) (store.Task, error)
	DeleteTask(ctx context.Context, id int) error
}

// Router provides embeddable HTTP handlers for the control API.
// Endpoints (under {basePath}):
//
//	POST /login
//	GET  /setups                 query: setups=a,b,c (optional filter)
//	GET  /setups/:setup
//	PUT  /setups/:setup          body: {fields, status}
//	PUT  /setups                 body: {setups, fields, status} (bulk)
//	POST /setups/:setup/heartbeat
//	POST /setups/:setup/fault
//	POST /setups/:setup/reboot
//	GET  /setups/:setup/activity query: window=<seconds>|all
//	GET  /stream                 SSE of committed updates
//	GET/POST /tasks, PUT/DELETE /tasks/:id
//	GET/POST /users, DELETE /users/:username
type Router struct {
	guard    *control.Guard
	agg      *activity.Aggregator
	tasks    TaskCatalog
	authSvc  *auth.Service
	authMW   *auth.Middleware
	rebooter reboot.Rebooter
	logger   *slog.Logger
	basePath string
	metrics  string
}

// Options wires the router's collaborators. Guard is required; the
// rest degrade: nil Auth disables authentication, nil Rebooter rejects
// reboots, empty MetricsPath skips the metrics endpoint.
type Options struct {
	BasePath    string
	Tasks       TaskCatalog
	Auth        *auth.Service
	AuthEnabled bool
	Rebooter    reboot.Rebooter
	Logger      *slog.Logger
	MetricsPath string
}

func NewRouter(guard *control.Guard, agg *activity.Aggregator, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rb := opts.Rebooter
	if rb == nil {
		rb = reboot.Nop{}
	}
	return &Router{
		guard:    guard,
		agg:      agg,
		tasks:    opts.Tasks,
		authSvc:  opts.Auth,
		authMW:   auth.NewMiddleware(opts.Auth, opts.AuthEnabled && opts.Auth != nil),
		rebooter: rb,
		logger:   logger,
		basePath: sanitizeBase(opts.BasePath),
		metrics:  opts.MetricsPath,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics != "" {
		g.GET(r.metrics, gin.WrapH(metrics.Handler()))
	}
	group := g.Group(r.basePath)
	group.POST("/login", r.handleLogin)

	api := group.Group("", r.authMW.GinAuth())
	api.GET("/setups", r.handleListSetups)
	api.PUT("/setups", r.handleBulkUpdate)
	api.GET("/setups/:setup", r.handleGetSetup)
	api.PUT("/setups/:setup", r.handleUpdateSetup)
	api.POST("/setups/:setup/heartbeat", r.handleHeartbeat)
	api.POST("/setups/:setup/fault", r.handleFault)
	api.POST("/setups/:setup/reboot", r.handleReboot)
	api.GET("/setups/:setup/activity", r.handleActivity)
	api.GET("/stream", r.handleStream)
	api.GET("/tasks", r.handleListTasks)
	api.POST("/tasks", r.handleSaveTask)
	api.PUT("/tasks/:id", r.handleUpdateTask)
	api.DELETE("/tasks/:id", r.handleDeleteTask)
	api.GET("/users", r.handleListUsers)
	api.POST("/users", r.handleCreateUser)
	api.DELETE("/users/:username", r.handleDeleteUser)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// httpStatus maps domain errors onto status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, control.ErrNotFound), errors.Is(err, activity.ErrNoActiveSession):
		return http.StatusNotFound
	case control.IsInvalidTransition(err):
		return http.StatusConflict
	case errors.Is(err, control.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) fail(c *gin.Context, err error) {
	writeJSON(c, httpStatus(err), errorResp{Error: err.Error()})
}

func (r *Router) handleLogin(c *gin.Context) {
	if r.authSvc == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "authentication is not configured"})
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	token, err := r.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(c, http.StatusUnauthorized, errorResp{Error: "invalid credentials"})
			return
		}
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"token": token})
}

func (r *Router) handleListSetups(c *gin.Context) {
	ctx := c.Request.Context()
	if raw := c.Query("setups"); raw != "" {
		recs, err := r.guard.FilterSetups(ctx, strings.Split(raw, ","))
		if err != nil {
			r.fail(c, err)
			return
		}
		writeJSON(c, http.StatusOK, recs)
		return
	}
	recs, err := r.guard.ListSetups(ctx)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleGetSetup(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	rec, err := r.guard.GetSetup(c.Request.Context(), setup)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

type updateRequest struct {
	Fields control.FieldPatch `json:"fields"`
	Status string             `json:"status"`
}

func (r *Router) handleUpdateSetup(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	rec, err := r.guard.UpdateSetup(c.Request.Context(), setup, req.Fields, control.Status(req.Status))
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

type bulkRequest struct {
	Setups []string           `json:"setups"`
	Fields control.FieldPatch `json:"fields"`
	Status string             `json:"status"`
}

func (r *Router) handleBulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Setups) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "setups list is empty"})
		return
	}
	res := r.guard.BulkUpdateSetups(c.Request.Context(), req.Setups, req.Fields, control.Status(req.Status))
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleHeartbeat(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	var hb control.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if hb.PingTime.IsZero() {
		hb.PingTime = time.Now().UTC()
	}
	if err := r.guard.RecordHeartbeat(c.Request.Context(), setup, hb); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleFault(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	var req struct {
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	rec, err := r.guard.ReportFault(c.Request.Context(), setup, req.State)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleReboot(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	ctx := c.Request.Context()
	rec, err := r.guard.GetSetup(ctx, setup)
	if err != nil {
		r.fail(c, err)
		return
	}
	if rec.IP == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "setup has no ip address"})
		return
	}
	if err := r.rebooter.Reboot(ctx, rec.IP); err != nil {
		r.logger.Error("reboot failed", "setup", setup, "addr", rec.IP, "error", err)
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	r.logger.Info("reboot issued", "setup", setup, "addr", rec.IP)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleActivity(c *gin.Context) {
	setup := c.Param("setup")
	if !isSafeName(setup) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid setup name"})
		return
	}
	if r.agg == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "activity aggregation is not configured"})
		return
	}
	window, err := activity.ParseWindow(c.DefaultQuery("window", "60"))
	if err != nil {
		r.fail(c, err)
		return
	}
	snap, err := r.agg.GetActivity(c.Request.Context(), setup, window)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleStream(c *gin.Context) {
	ch, cancel := r.guard.Watch(64)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("update", u)
			c.Writer.Flush()
		}
	}
}

func (r *Router) handleListTasks(c *gin.Context) {
	if r.tasks == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "task catalog is not configured"})
		return
	}
	tasks, err := r.tasks.ListTasks(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tasks)
}

func (r *Router) handleSaveTask(c *gin.Context) {
	if r.tasks == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "task catalog is not configured"})
		return
	}
	var t store.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if t.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "task name required"})
		return
	}
	t.ID = 0
	saved, err := r.tasks.SaveTask(c.Request.Context(), t)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, saved)
}

func (r *Router) handleUpdateTask(c *gin.Context) {
	if r.tasks == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "task catalog is not configured"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid task id"})
		return
	}
	var t store.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	t.ID = id
	saved, err := r.tasks.SaveTask(c.Request.Context(), t)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

func (r *Router) handleDeleteTask(c *gin.Context) {
	if r.tasks == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "task catalog is not configured"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid task id"})
		return
	}
	if err := r.tasks.DeleteTask(c.Request.Context(), id); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleListUsers(c *gin.Context) {
	if r.authSvc == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "authentication is not configured"})
		return
	}
	users, err := r.authSvc.ListUsers(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, users)
}

func (r *Router) handleCreateUser(c *gin.Context) {
	if r.authSvc == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "authentication is not configured"})
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.authSvc.CreateUser(c.Request.Context(), req.Username, req.Password, req.Role); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, okResp{OK: true})
}

func (r *Router) handleDeleteUser(c *gin.Context) {
	if r.authSvc == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "authentication is not configured"})
		return
	}
	if err := r.authSvc.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
