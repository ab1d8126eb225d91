package events

import (
	"encoding/json"
	"time"
)

// Event names published by the runner.
const (
	TypeRunStarted       = "run_started"
	TypeCompanyProcessed = "company_processed"
	TypeRunFinished      = "run_finished"
	TypeRunFailed        = "run_failed"
)

type Event struct {
	Type  string          `json:"type"`
	At    time.Time       `json:"at"`
	JobID string          `json:"job_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(jobID, typ string, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:  typ,
		At:    time.Now().UTC(),
		JobID: jobID,
		Data:  raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
