package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// JobStatusData contains data for job lifecycle events. The same payload
// shape is used for queued, started, progress, completed and failed events;
// the event type carries the transition.
type JobStatusData struct {
	JobID      string  `json:"job_id"`
	JobType    string  `json:"job_type"`
	Status     string  `json:"status"`
	Stage      string  `json:"stage,omitempty"`
	Generation int     `json:"generation,omitempty"`
	Total      int     `json:"total,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// EventType returns the event type for JobStatusData based on its status
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "pending":
		return JobQueued
	case "running":
		if d.Stage != "" {
			return JobProgress
		}
		return JobStarted
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	}
	return JobProgress
}

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	PortfolioID int64  `json:"portfolio_id"`
	Action      string `json:"action"` // "created", "updated", "deleted"
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType {
	return PortfolioChanged
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Symbols      []string `json:"symbols"`
	RowsUpserted int      `json:"rows_upserted"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// RunArchivedData contains data for RunArchived events
type RunArchivedData struct {
	RunID   string `json:"run_id"`
	Mode    string `json:"mode"`
	Records int    `json:"records"`
}

// EventType returns the event type for RunArchivedData
func (d *RunArchivedData) EventType() EventType {
	return RunArchived
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Files    int   `json:"files"`
	Bytes    int64 `json:"bytes"`
	Duration int64 `json:"duration_ms"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
