package muapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

// reloadRequest is the body of POST /api/control-plane/reload.
type reloadRequest struct {
	Reason string `json:"reason,omitempty"`
}

// reloadResponse mirrors spec §6's documented reload response shape.
type reloadResponse struct {
	OK                  bool   `json:"ok"`
	Reason              string `json:"reason"`
	PreviousControlPlane string `json:"previous_control_plane,omitempty"`
	ControlPlane        string `json:"control_plane,omitempty"`
	Generation          string `json:"generation,omitempty"`
	Error               string `json:"error,omitempty"`
}

func (s *Server) reloadHandler(c *echo.Context) error {
	var req reloadRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	prevGen, _ := s.reload.Active()
	attempt, err := s.reload.Reload(c.Request().Context(), req.Reason)
	if err != nil {
		return c.JSON(http.StatusOK, reloadResponse{OK: false, Reason: req.Reason, Error: err.Error()})
	}

	resp := reloadResponse{
		OK:                   attempt.State != "failed",
		Reason:               req.Reason,
		PreviousControlPlane: prevGen.GenerationID,
		ControlPlane:         attempt.ToGeneration,
		Generation:           attempt.ToGeneration,
		Error:                attempt.Error,
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) rollbackHandler(c *echo.Context) error {
	attempt, err := s.reload.Rollback(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, attempt)
}

func (s *Server) channelsHandler(c *echo.Context) error {
	caps := make([]muadapter.Capability, 0, len(s.adapters))
	for _, a := range s.adapters {
		caps = append(caps, a.Capability())
	}
	return c.JSON(http.StatusOK, map[string]any{"channels": caps})
}
