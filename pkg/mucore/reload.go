package mucore

// ReloadState is the lifecycle state of a ReloadAttempt.
type ReloadState string

// Reload states.
const (
	ReloadPlanned   ReloadState = "planned"
	ReloadSwapped   ReloadState = "swapped"
	ReloadCompleted ReloadState = "completed"
	ReloadFailed    ReloadState = "failed"
)

// ReloadAttempt tracks one generation-supervisor reload (spec §3).
type ReloadAttempt struct {
	AttemptID        string      `json:"attempt_id"`
	Reason           string      `json:"reason"`
	State            ReloadState `json:"state"`
	RequestedAtMs    int64       `json:"requested_at_ms"`
	SwappedAtMs      int64       `json:"swapped_at_ms,omitempty"`
	FinishedAtMs     int64       `json:"finished_at_ms,omitempty"`
	FromGeneration   string      `json:"from_generation,omitempty"`
	ToGeneration     string      `json:"to_generation"`
	Trigger          string      `json:"trigger,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// Generation is the immutable identity of a control-plane module instance.
type Generation struct {
	GenerationID  string `json:"generation_id"`
	GenerationSeq int64  `json:"generation_seq"`
}
