package muapi

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/muissue"
	"github.com/femtomc/mu-controlplane/pkg/mureload"
)

// mapServiceError maps seam/domain errors to HTTP error responses,
// grounded on the teacher's mapServiceError in pkg/api/errors.go.
func mapServiceError(err error) *echo.HTTPError {
	if errors.Is(err, muissue.ErrNotFound) || errors.Is(err, mucore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, muissue.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, muissue.ErrNotClaimable) {
		return echo.NewHTTPError(http.StatusConflict, "issue is not claimable")
	}
	if errors.Is(err, mureload.ErrRollbackUnavailable) {
		return echo.NewHTTPError(http.StatusConflict, "rollback unavailable, no previous generation")
	}

	slog.Error("unexpected control plane error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
