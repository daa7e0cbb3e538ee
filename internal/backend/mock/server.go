// Package mock provides an in-memory reporting server speaking the same v2
// JSON API as the real service. It backs the REST client tests and the
// mock-server command.
package mock

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"rpmirror/internal/backend"
	"rpmirror/pkg/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Launch is a stored launch.
type Launch struct {
	ID          string              `json:"id"`
	Project     string              `json:"project"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Mode        backend.LaunchMode  `json:"mode"`
	Attributes  []backend.Attribute `json:"attributes,omitempty"`
	Rerun       bool                `json:"rerun,omitempty"`
	RerunOf     string              `json:"rerunOf,omitempty"`
	StartTime   time.Time           `json:"startTime"`
	EndTime     time.Time           `json:"endTime,omitempty"`
	Finished    bool                `json:"finished"`
}

// Item is a stored test item.
type Item struct {
	ID           string              `json:"id"`
	LaunchID     string              `json:"launchUuid"`
	ParentID     string              `json:"parentId,omitempty"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Type         backend.ItemType    `json:"type"`
	UniqueID     string              `json:"uniqueId,omitempty"`
	CodeRef      string              `json:"codeRef,omitempty"`
	TestCaseID   string              `json:"testCaseId,omitempty"`
	TestCaseHash int32               `json:"testCaseHash,omitempty"`
	Retry        bool                `json:"retry,omitempty"`
	Attributes   []backend.Attribute `json:"attributes,omitempty"`
	Status       backend.Status      `json:"status,omitempty"`
	StartTime    time.Time           `json:"startTime"`
	EndTime      time.Time           `json:"endTime,omitempty"`
	Finished     bool                `json:"finished"`
}

// LogEntry is a stored log entry.
type LogEntry struct {
	ID       string           `json:"id"`
	LaunchID string           `json:"launchUuid"`
	ItemID   string           `json:"itemUuid,omitempty"`
	Level    backend.LogLevel `json:"level"`
	Message  string           `json:"message"`
	Time     time.Time        `json:"time"`
}

// Options configures the server.
type Options struct {
	// APIKey, when set, is required as bearer token on every request
	APIKey string
}

// Server is the in-memory reporting server.
type Server struct {
	echo *echo.Echo
	opts Options

	mu        sync.RWMutex
	launches  map[string]*Launch
	items     map[string]*Item
	itemOrder []string
	logs      []LogEntry

	server *http.Server
}

// New creates a server with its routes registered.
func New(opts Options) *Server {
	s := &Server{
		echo:     echo.New(),
		opts:     opts,
		launches: make(map[string]*Launch),
		items:    make(map[string]*Item),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	if opts.APIKey != "" {
		s.echo.Use(s.authenticate)
	}
	s.RegisterRoutes(s.echo)
	s.server = &http.Server{Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// RegisterRoutes registers the reporting API routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v2/:project")

	g.POST("/launch", s.StartLaunch)
	g.PUT("/launch/:id/finish", s.FinishLaunch)
	g.GET("/launch/:id", s.GetLaunch)

	g.POST("/item", s.StartItem)
	g.POST("/item/:parent", s.StartItem)
	g.PUT("/item/:id", s.FinishItem)
	g.GET("/item", s.ListItems)

	g.POST("/log", s.SaveLog)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token != s.opts.APIKey {
			return c.JSON(http.StatusUnauthorized, errorRS("invalid api key"))
		}
		return next(c)
	}
}

// Serve serves the API on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	logging.Info("MockServer", "Serving reporting API on %s", l.Addr())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server. A server shut down before Serve never serves.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type entryCreatedRS struct {
	ID string `json:"id"`
}

type messageRS struct {
	Message string `json:"message"`
}

func errorRS(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// StartLaunch handles POST /api/v2/:project/launch
func (s *Server) StartLaunch(c echo.Context) error {
	var rq backend.StartLaunchRQ
	if err := c.Bind(&rq); err != nil {
		return c.JSON(http.StatusBadRequest, errorRS("invalid request body"))
	}
	if rq.Name == "" {
		return c.JSON(http.StatusBadRequest, errorRS("name is required"))
	}

	id := rq.UUID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.launches[id]; exists {
		return c.JSON(http.StatusConflict, errorRS("launch already exists"))
	}
	mode := rq.Mode
	if mode == "" {
		mode = backend.LaunchModeDefault
	}
	s.launches[id] = &Launch{
		ID:          id,
		Project:     c.Param("project"),
		Name:        rq.Name,
		Description: rq.Description,
		Mode:        mode,
		Attributes:  rq.Attributes,
		Rerun:       rq.Rerun,
		RerunOf:     rq.RerunOf,
		StartTime:   rq.StartTime,
	}
	logging.Debug("MockServer", "Launch %s started: %s", id, rq.Name)
	return c.JSON(http.StatusCreated, entryCreatedRS{ID: id})
}

// FinishLaunch handles PUT /api/v2/:project/launch/:id/finish
func (s *Server) FinishLaunch(c echo.Context) error {
	var rq backend.FinishLaunchRQ
	if err := c.Bind(&rq); err != nil {
		return c.JSON(http.StatusBadRequest, errorRS("invalid request body"))
	}
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.launches[id]
	if !ok {
		return c.JSON(http.StatusNotFound, errorRS("launch not found"))
	}
	if l.Finished {
		return c.JSON(http.StatusConflict, errorRS("launch already finished"))
	}
	for _, item := range s.items {
		if item.LaunchID == id && !item.Finished {
			return c.JSON(http.StatusConflict, errorRS("launch has items in progress"))
		}
	}
	l.Finished = true
	l.EndTime = rq.EndTime
	logging.Debug("MockServer", "Launch %s finished", id)
	return c.JSON(http.StatusOK, messageRS{Message: "launch " + id + " finished"})
}

// GetLaunch handles GET /api/v2/:project/launch/:id
func (s *Server) GetLaunch(c echo.Context) error {
	l, ok := s.Launch(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorRS("launch not found"))
	}
	return c.JSON(http.StatusOK, l)
}

// StartItem handles POST /api/v2/:project/item[/:parent]
func (s *Server) StartItem(c echo.Context) error {
	var rq backend.StartItemRQ
	if err := c.Bind(&rq); err != nil {
		return c.JSON(http.StatusBadRequest, errorRS("invalid request body"))
	}
	if rq.Name == "" || rq.Type == "" {
		return c.JSON(http.StatusBadRequest, errorRS("name and type are required"))
	}
	parentID := c.Param("parent")

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.launches[rq.LaunchUUID]
	if !ok {
		return c.JSON(http.StatusNotFound, errorRS("launch not found"))
	}
	if l.Finished {
		return c.JSON(http.StatusConflict, errorRS("launch already finished"))
	}
	if parentID != "" {
		parent, ok := s.items[parentID]
		if !ok {
			return c.JSON(http.StatusNotFound, errorRS("parent item not found"))
		}
		if parent.Finished {
			return c.JSON(http.StatusConflict, errorRS("parent item already finished"))
		}
	}

	id := rq.UUID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.items[id]; exists {
		return c.JSON(http.StatusConflict, errorRS("item already exists"))
	}
	s.items[id] = &Item{
		ID:           id,
		LaunchID:     rq.LaunchUUID,
		ParentID:     parentID,
		Name:         rq.Name,
		Description:  rq.Description,
		Type:         rq.Type,
		UniqueID:     rq.UniqueID,
		CodeRef:      rq.CodeRef,
		TestCaseID:   rq.TestCaseID,
		TestCaseHash: rq.TestCaseHash,
		Retry:        rq.Retry,
		Attributes:   rq.Attributes,
		StartTime:    rq.StartTime,
	}
	s.itemOrder = append(s.itemOrder, id)
	return c.JSON(http.StatusCreated, entryCreatedRS{ID: id})
}

// FinishItem handles PUT /api/v2/:project/item/:id
func (s *Server) FinishItem(c echo.Context) error {
	var rq backend.FinishItemRQ
	if err := c.Bind(&rq); err != nil {
		return c.JSON(http.StatusBadRequest, errorRS("invalid request body"))
	}
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return c.JSON(http.StatusNotFound, errorRS("item not found"))
	}
	if item.Finished {
		return c.JSON(http.StatusConflict, errorRS("item already finished"))
	}
	for _, child := range s.items {
		if child.ParentID == id && !child.Finished {
			return c.JSON(http.StatusConflict, errorRS("item has children in progress"))
		}
	}
	switch rq.Status {
	case backend.StatusPassed, backend.StatusFailed, backend.StatusSkipped:
	default:
		return c.JSON(http.StatusBadRequest, errorRS("invalid status"))
	}
	item.Status = rq.Status
	item.EndTime = rq.EndTime
	item.Finished = true
	return c.JSON(http.StatusOK, messageRS{Message: "item " + id + " finished"})
}

// ListItems handles GET /api/v2/:project/item?launch=ID
func (s *Server) ListItems(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Items(c.QueryParam("launch")))
}

// SaveLog handles POST /api/v2/:project/log
func (s *Server) SaveLog(c echo.Context) error {
	var rq backend.LogRQ
	if err := c.Bind(&rq); err != nil {
		return c.JSON(http.StatusBadRequest, errorRS("invalid request body"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.launches[rq.LaunchUUID]; !ok {
		return c.JSON(http.StatusNotFound, errorRS("launch not found"))
	}
	if rq.ItemUUID != "" {
		if _, ok := s.items[rq.ItemUUID]; !ok {
			return c.JSON(http.StatusNotFound, errorRS("item not found"))
		}
	}
	id := uuid.NewString()
	s.logs = append(s.logs, LogEntry{
		ID:       id,
		LaunchID: rq.LaunchUUID,
		ItemID:   rq.ItemUUID,
		Level:    rq.Level,
		Message:  rq.Message,
		Time:     rq.Time,
	})
	return c.JSON(http.StatusCreated, entryCreatedRS{ID: id})
}

// Launch returns a copy of a stored launch.
func (s *Server) Launch(id string) (Launch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.launches[id]
	if !ok {
		return Launch{}, false
	}
	return *l, true
}

// Launches returns copies of all launches ordered by start time.
func (s *Server) Launches() []Launch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Launch, 0, len(s.launches))
	for _, l := range s.launches {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Items returns copies of the items of a launch in creation order. An empty
// launch id returns all items.
func (s *Server) Items(launchID string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		item := s.items[id]
		if launchID == "" || item.LaunchID == launchID {
			out = append(out, *item)
		}
	}
	return out
}

// Logs returns copies of all log entries.
func (s *Server) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}
