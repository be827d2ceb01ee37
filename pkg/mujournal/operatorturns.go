package mujournal

import "encoding/json"

// OperatorTurnRecord is one audited turn of the operator backend seam
// (spec §2 item 9, §6 operator_turns.jsonl). The pipeline does not write
// these rows: it calls Backend.RunTurn without appending to this journal.
// The turn's content is opaque to the control plane beyond this envelope.
type OperatorTurnRecord struct {
	OperatorSessionID string `json:"operator_session_id"`
	OperatorTurnID    string `json:"operator_turn_id"`
	CommandID         string `json:"command_id"`
	Kind              string `json:"kind"` // "respond" | "command"
	AtMs              int64  `json:"at_ms"`
}

// OperatorTurnJournal is the append-only operator_turns.jsonl audit log.
type OperatorTurnJournal struct {
	j *Journal
}

// OpenOperatorTurnJournal opens (or creates) operator_turns.jsonl.
func OpenOperatorTurnJournal(path string) (*OperatorTurnJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &OperatorTurnJournal{j: j}, nil
}

// Append records a turn.
func (ot *OperatorTurnJournal) Append(rec OperatorTurnRecord) error {
	return ot.j.Append(rec)
}

// All replays every recorded turn, in journal order.
func (ot *OperatorTurnJournal) All() ([]OperatorTurnRecord, error) {
	var out []OperatorTurnRecord
	err := ot.j.Load(func(line []byte) error {
		var rec OperatorTurnRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Close releases the underlying file handle.
func (ot *OperatorTurnJournal) Close() error {
	return ot.j.Close()
}
