// internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/logstore"
	"github.com/sua-org/safetynet/internal/registry"
	"github.com/sua-org/safetynet/internal/session"
	"github.com/sua-org/safetynet/internal/supervisor"
)

// Core é a parte do supervisor que a API HTTP usa.
type Core interface {
	Subscribe(buffer int) (<-chan supervisor.Notification, func())
	Cameras(ctx context.Context) ([]core.CameraInfo, error)
	Sessions(ctx context.Context) ([]session.Snapshot, error)
	Logs(ctx context.Context, f logstore.Filter) ([]core.LogEntry, error)
	AddCamera(ctx context.Context, info core.CameraInfo) (core.CameraInfo, error)
	RemoveCamera(ctx context.Context, name string, purgeLogs bool) error
	SetMode(ctx context.Context, camera, mode string) (string, error)
	StartHealthRound(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context) error
	ClearStreak(ctx context.Context, camera string) error
	Status(ctx context.Context) (supervisor.Status, error)
}

type Handler struct {
	core Core
}

func NewHandler(c Core) *Handler {
	return &Handler{core: c}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func jsonError(c echo.Context, status int, code string, err error) error {
	return c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

// statusFor traduz erros do núcleo em status HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, registry.ErrDuplicateName), errors.Is(err, registry.ErrDuplicateIP):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, registry.ErrMissingField), errors.Is(err, registry.ErrInvalidIP),
		errors.Is(err, registry.ErrInvalidPort), errors.Is(err, supervisor.ErrInvalidMode):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable, "NOT_CONNECTED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func fail(c echo.Context, err error) error {
	status, code := statusFor(err)
	return jsonError(c, status, code, err)
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus devolve o heartbeat do processo.
func (h *Handler) HandleStatus(c echo.Context) error {
	st, err := h.core.Status(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) HandleListCameras(c echo.Context) error {
	cams, err := h.core.Cameras(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cams)
}

func (h *Handler) HandleAddCamera(c echo.Context) error {
	var req core.CameraInfo
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "BAD_REQUEST", errors.New("invalid JSON body"))
	}
	added, err := h.core.AddCamera(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, added)
}

func (h *Handler) HandleRemoveCamera(c echo.Context) error {
	purge, _ := strconv.ParseBool(c.QueryParam("purge_logs"))
	if err := h.core.RemoveCamera(c.Request().Context(), c.Param("name"), purge); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Camera    string `json:"camera"`
	Mode      string `json:"mode"`
	RequestID string `json:"request_id"`
}

// HandleSetMode manda set_mode; o ack chega depois como notificação.
func (h *Handler) HandleSetMode(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "BAD_REQUEST", errors.New("invalid JSON body"))
	}
	name := c.Param("name")
	id, err := h.core.SetMode(c.Request().Context(), name, strings.TrimSpace(req.Mode))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, modeResponse{Camera: name, Mode: req.Mode, RequestID: id})
}

func (h *Handler) HandleClearStreak(c echo.Context) error {
	if err := h.core.ClearStreak(c.Request().Context(), c.Param("name")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) HandleHealthCheck(c echo.Context) error {
	probed, err := h.core.StartHealthRound(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	if probed == nil {
		probed = []string{}
	}
	return c.JSON(http.StatusAccepted, map[string][]string{"probed": probed})
}

func (h *Handler) HandleReconcile(c echo.Context) error {
	if err := h.core.Reconcile(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleSessions(c echo.Context) error {
	snaps, err := h.core.Sessions(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snaps)
}

// HandleLogs devolve o feed, mais novo primeiro, filtrado por câmera/função.
func (h *Handler) HandleLogs(c echo.Context) error {
	f := logstore.Filter{
		Camera:   c.QueryParam("camera"),
		Function: core.Function(c.QueryParam("function")),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return jsonError(c, http.StatusBadRequest, "VALIDATION_ERROR", errors.New("limit must be a non-negative integer"))
		}
		f.Limit = n
	}
	entries, err := h.core.Logs(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
