package muapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

// statusCounters mirrors the reload supervisor's observability counters
// (spec §4.6), so GET /api/status can satisfy spec §6's
// "response must contain generation and observability" requirement.
type statusCounters struct {
	ReloadSuccessTotal         int64 `json:"reload_success_total"`
	ReloadFailureTotal         int64 `json:"reload_failure_total"`
	ReloadDrainDurationMsTotal int64 `json:"reload_drain_duration_ms_total"`
	ReloadDrainSamplesTotal    int64 `json:"reload_drain_samples_total"`
	DuplicateSignalTotal       int64 `json:"duplicate_signal_total"`
	DropSignalTotal            int64 `json:"drop_signal_total"`
}

type controlPlaneStatus struct {
	Active     bool                  `json:"active"`
	Adapters   []muadapter.Capability `json:"adapters"`
	Routes     []string              `json:"routes"`
	Generation string                `json:"generation"`
	Observability struct {
		Counters statusCounters `json:"counters"`
	} `json:"observability"`
}

type statusResponse struct {
	ControlPlane controlPlaneStatus `json:"control_plane"`
}

func (s *Server) statusHandler(c *echo.Context) error {
	gen, active := s.reload.Active()

	caps := make([]muadapter.Capability, 0, len(s.adapters))
	for _, a := range s.adapters {
		caps = append(caps, a.Capability())
	}

	counters := s.reload.Counters.Snapshot()

	resp := statusResponse{
		ControlPlane: controlPlaneStatus{
			Active:     active,
			Adapters:   caps,
			Generation: gen.GenerationID,
			Routes: []string{
				"/webhooks/:channel",
				"/api/control-plane/reload",
				"/api/control-plane/rollback",
				"/api/control-plane/channels",
				"/api/status",
				"/api/issues",
				"/api/forum/:topic",
				"/api/events",
				"/api/session-flash",
			},
		},
	}
	resp.ControlPlane.Observability.Counters = statusCounters{
		ReloadSuccessTotal:         counters.ReloadSuccessTotal,
		ReloadFailureTotal:         counters.ReloadFailureTotal,
		ReloadDrainDurationMsTotal: counters.ReloadDrainDurationMsTotal,
		ReloadDrainSamplesTotal:    counters.ReloadDrainSamplesTotal,
		DuplicateSignalTotal:       counters.DuplicateSignalTotal,
		DropSignalTotal:            counters.DropSignalTotal,
	}
	return c.JSON(http.StatusOK, resp)
}
