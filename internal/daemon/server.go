package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"inksync/internal/engine"
	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/store"
)

type Server struct {
	echo    *echo.Echo
	manager *Manager
	port    int
	stopCh  chan struct{}
}

func NewServer(manager *Manager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		manager: manager,
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// For a specific workspace
	g := s.echo.Group("/workspaces")
	g.GET("", s.handleListWorkspaces)
	g.POST("", s.handleAddWorkspace)
	g.DELETE("/:id", s.handleRemoveWorkspace)
	g.POST("/:id/pause", s.handlePauseWorkspace)
	g.POST("/:id/resume", s.handleResumeWorkspace)
	g.POST("/:id/edit", s.handleEdit)
	g.POST("/:id/flush", s.handleFlush)
	g.POST("/:id/commit", s.handleCommit)
	g.POST("/:id/sync", s.handleSync)
	g.POST("/:id/sync/continue", s.handleContinueSync)
	g.POST("/:id/sync/abort", s.handleAbortSync)
	g.GET("/:id/conflicts", s.handleConflicts)
	g.POST("/:id/conflicts/resolve", s.handleResolve)
	g.GET("/:id/log", s.handleLog)
	g.POST("/:id/documents/delete", s.handleDeleteDocument)
	g.POST("/:id/documents/rename", s.handleRenameDocument)

	// Push retry queue
	s.echo.GET("/queue", s.handleQueue)
	s.echo.POST("/queue/drain", s.handleDrain)

	// History
	s.echo.GET("/history", s.handleHistory)
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.StopAll(ctx)
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

// engine resolves the :id parameter to a running engine, writing the
// error response itself when it cannot.
func (s *Server) engine(c echo.Context) (*engine.Engine, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	eng, err := s.manager.Engine(uint(id))
	if err != nil {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		return nil, false
	}

	return eng, true
}

// syncStatus maps sync errors onto response codes: a busy or wedged
// workspace is a conflict, a missing credential is the caller's to fix.
func syncStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrSyncInProgress), errors.Is(err, store.ErrBadState):
		return http.StatusConflict
	case errors.Is(err, store.ErrNoCredential):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(c echo.Context) error {
	size, err := s.manager.QueueSize()
	if err != nil {
		logger.Log.Warn("failed to count queue", zap.Error(err))
	}

	stats, err := s.manager.HistoryStats()
	if err != nil {
		logger.Log.Warn("failed to load history stats", zap.Error(err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"workspaces": s.manager.Snapshots(),
		"queue_len":  size,
		"history":    stats,
	})
}

func (s *Server) handleStop(c echo.Context) error {
	s.stopCh <- struct{}{}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListWorkspaces(c echo.Context) error {
	workspaces, err := s.manager.Workspaces()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	snaps := make(map[uint]model.WorkspaceSnapshot)
	for _, snap := range s.manager.Snapshots() {
		snaps[snap.WorkspaceID] = snap
	}

	return c.JSON(http.StatusOK, map[string]any{
		"workspaces": workspaces,
		"running":    snaps,
	})
}

type addWorkspaceRequest struct {
	Path      string `json:"path"`
	Remote    string `json:"remote"`
	Branch    string `json:"branch"`
	RemoteURL string `json:"remote_url"`
}

func (s *Server) handleAddWorkspace(c echo.Context) error {
	var req addWorkspaceRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path required"})
	}

	ws, err := s.manager.Register(c.Request().Context(), req.Path, req.Remote, req.Branch, req.RemoteURL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, ws)
}

func (s *Server) handleRemoveWorkspace(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.manager.Remove(c.Request().Context(), uint(id)); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePauseWorkspace(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.manager.Pause(uint(id)); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeWorkspace(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.manager.Resume(uint(id)); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "resumed"})
}

type editRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleEdit(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	var req editRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path required"})
	}

	eng.OnEdit(req.Path, []byte(req.Content))
	return c.JSON(http.StatusAccepted, map[string]string{"status": "pending"})
}

type flushRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFlush(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	var req flushRequest
	_ = c.Bind(&req)

	var err error
	if req.Path == "" {
		err = eng.FlushAll(c.Request().Context())
	} else {
		err = eng.FlushNow(c.Request().Context(), req.Path)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "flushed"})
}

type commitRequest struct {
	Trigger model.CommitTrigger `json:"trigger"`
}

func (s *Server) handleCommit(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	req := commitRequest{Trigger: model.TriggerBackgrounded}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if !req.Trigger.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown trigger"})
	}

	eng.RequestCommit(req.Trigger)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleSync(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	result, err := eng.Sync(c.Request().Context())
	if err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	if result.Status == model.StatusConflict {
		return c.JSON(http.StatusConflict, result)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleContinueSync(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	result, err := eng.ContinueSync(c.Request().Context())
	if err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	if result.Status == model.StatusConflict {
		return c.JSON(http.StatusConflict, result)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleAbortSync(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	if err := eng.AbortSync(c.Request().Context()); err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleConflicts(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	return c.JSON(http.StatusOK, map[string]any{
		"state": eng.ConflictState().String(),
		"files": eng.Conflicts(),
	})
}

type resolveRequest struct {
	Items []model.ResolutionItem `json:"items"`
}

func (s *Server) handleResolve(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	var req resolveRequest
	if err := c.Bind(&req); err != nil || len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "items required"})
	}

	result, err := eng.ResolveAll(c.Request().Context(), req.Items)
	if err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	if result.Status == model.StatusConflict {
		return c.JSON(http.StatusConflict, result)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleLog(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil {
			n = parsed
		}
	}

	entries, err := eng.SnapshotLog(c.Request().Context(), n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, entries)
}

type deleteDocumentRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	var req deleteDocumentRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path required"})
	}

	if err := eng.DeleteDocument(c.Request().Context(), req.Path); err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

type renameDocumentRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (s *Server) handleRenameDocument(c echo.Context) error {
	eng, ok := s.engine(c)
	if !ok {
		return nil
	}

	var req renameDocumentRequest
	if err := c.Bind(&req); err != nil || req.Old == "" || req.New == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "old and new required"})
	}

	if err := eng.RenameDocument(c.Request().Context(), req.Old, req.New); err != nil {
		return c.JSON(syncStatus(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleQueue(c echo.Context) error {
	tasks, err := s.manager.Queue()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (s *Server) handleDrain(c echo.Context) error {
	summary, err := s.manager.Drain(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil {
			n = parsed
		}
	}

	histories, err := s.manager.History(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}
