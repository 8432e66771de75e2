package ws

// Event types pushed to websocket clients.
const (
	TypeJobStatus = "job.status"
	TypeJobResult = "job.result"
)

// StatusEvent reports a job state transition.
type StatusEvent struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResultEvent carries the hashes computed for a finished job.
type ResultEvent struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	Result any    `json:"result"`
}

// Status builds a StatusEvent.
func Status(jobID, status, message string) StatusEvent {
	return StatusEvent{Type: TypeJobStatus, JobID: jobID, Status: status, Message: message}
}

// Result builds a ResultEvent.
func Result(jobID string, result any) ResultEvent {
	return ResultEvent{Type: TypeJobResult, JobID: jobID, Result: result}
}

func (e StatusEvent) job() string { return e.JobID }

func (e ResultEvent) job() string { return e.JobID }
