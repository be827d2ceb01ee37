package muapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

type createSessionFlashRequest struct {
	FlashID   string `json:"flash_id"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

func (s *Server) listSessionFlashHandler(c *echo.Context) error {
	views := s.flash.List(
		c.QueryParam("session_id"),
		c.QueryParam("kind"),
		c.QueryParam("contains"),
		c.QueryParam("status"),
	)
	return c.JSON(http.StatusOK, map[string]any{"flashes": views})
}

func (s *Server) createSessionFlashHandler(c *echo.Context) error {
	var req createSessionFlashRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}
	if req.SessionID == "" || req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and text required")
	}
	if req.FlashID == "" {
		req.FlashID = s.ids.NewID("flash")
	}
	flash := mujournal.SessionFlash{
		FlashID:     req.FlashID,
		SessionID:   req.SessionID,
		Kind:        req.Kind,
		Text:        req.Text,
		CreatedAtMs: s.now(),
	}
	if err := s.flash.Create(flash); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, flash)
}

func (s *Server) ackSessionFlashHandler(c *echo.Context) error {
	deliveredAt, err := s.flash.Ack(c.Param("id"), s.now())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"flash_id": c.Param("id"), "delivered_at_ms": deliveredAt})
}
