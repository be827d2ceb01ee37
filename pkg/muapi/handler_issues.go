package muapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/muissue"
)

type createIssueRequest struct {
	Title  string            `json:"title"`
	Labels []string          `json:"labels,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type updateIssueRequest struct {
	Title  *string  `json:"title,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type closeIssueRequest struct {
	Reason string `json:"reason,omitempty"`
}

type claimIssueRequest struct {
	Claimant string `json:"claimant"`
}

func (s *Server) listIssuesHandler(c *echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id query parameter required")
	}
	issue, err := s.issues.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, issue)
}

func (s *Server) createIssueHandler(c *echo.Context) error {
	var req createIssueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}
	issue, err := s.issues.Create(c.Request().Context(), muissue.Issue{
		Title:    req.Title,
		Labels:   req.Labels,
		Metadata: req.Metadata,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, issue)
}

func (s *Server) updateIssueHandler(c *echo.Context) error {
	var req updateIssueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}
	issue, err := s.issues.Update(c.Request().Context(), c.Param("id"), muissue.IssuePatch{
		Title:  req.Title,
		Labels: req.Labels,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, issue)
}

func (s *Server) closeIssueHandler(c *echo.Context) error {
	var req closeIssueRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
		}
	}
	issue, err := s.issues.Close(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, issue)
}

func (s *Server) claimIssueHandler(c *echo.Context) error {
	var req claimIssueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payload invalid")
	}
	if req.Claimant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "claimant required")
	}
	issue, err := s.issues.Claim(c.Request().Context(), c.Param("id"), req.Claimant)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, issue)
}

func (s *Server) readyIssuesHandler(c *echo.Context) error {
	issues, err := s.issues.Ready(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"issues": issues})
}
