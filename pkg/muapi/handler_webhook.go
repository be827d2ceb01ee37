package muapi

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

// webhookHandler implements POST /webhooks/:channel (spec §6): verify,
// parse, and — unless deferred or a Slack handshake challenge — hand the
// normalized envelope to the pipeline.
func (s *Server) webhookHandler(c *echo.Context) error {
	channel := c.Param("channel")
	adapter, ok := s.adapters[channel]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body")
	}

	switch adapter.Verify(c.Request(), body) {
	case muadapter.VerifyMismatch:
		return echo.NewHTTPError(http.StatusUnauthorized, "signature mismatch")
	case muadapter.VerifyMalformed:
		return echo.NewHTTPError(http.StatusBadRequest, "malformed verification headers")
	}

	parsed, err := adapter.Parse(c.Request(), body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}

	if parsed.Challenge != "" {
		return c.JSON(http.StatusOK, map[string]string{"challenge": parsed.Challenge})
	}
	if parsed.Deferred {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "deferred"})
	}
	if parsed.Envelope == nil {
		return c.NoContent(http.StatusOK)
	}

	result := s.pipeline.HandleInbound(c.Request().Context(), *parsed.Envelope)
	return c.JSON(http.StatusOK, result)
}
