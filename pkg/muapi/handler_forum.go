package muapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

type postForumRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (s *Server) readForumHandler(c *echo.Context) error {
	posts, err := s.forum.Read(c.Request().Context(), c.Param("topic"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) postForumHandler(c *echo.Context) error {
	var req postForumRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}
	if req.Author == "" || req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "author and body required")
	}
	post, err := s.forum.Post(c.Request().Context(), c.Param("topic"), req.Author, req.Body)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, post)
}
