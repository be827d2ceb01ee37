package muapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// listEventsHandler implements GET /api/events with the filters named in
// spec §6: since, type, source, issue_id, run_id, contains.
func (s *Server) listEventsHandler(c *echo.Context) error {
	sinceID, _ := strconv.ParseInt(c.QueryParam("since"), 10, 64)
	events := s.events.Query(mujournal.EventFilter{
		SinceID:  sinceID,
		Type:     c.QueryParam("type"),
		Source:   c.QueryParam("source"),
		IssueID:  c.QueryParam("issue_id"),
		RunID:    c.QueryParam("run_id"),
		Contains: c.QueryParam("contains"),
	})
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// tailEventsHandler implements GET /api/events/tail?n= as an admin
// WebSocket stream: it first sends the last n events, then polls for new
// ones and pushes them as they arrive, grounded on the teacher's
// pkg/events connection-manager write loop (coder/websocket, write
// deadline per send).
func (s *Server) tailEventsHandler(c *echo.Context) error {
	n, _ := strconv.Atoi(c.QueryParam("n"))
	if n <= 0 {
		n = 50
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request().Context()
	tail := s.events.Tail(n)
	var lastID int64
	for _, e := range tail {
		if err := writeJSON(ctx, conn, e); err != nil {
			return nil
		}
		lastID = e.ID
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fresh := s.events.Query(mujournal.EventFilter{SinceID: lastID})
			for _, e := range fresh {
				if err := writeJSON(ctx, conn, e); err != nil {
					return nil
				}
				lastID = e.ID
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
