package api

// JobView is the wire representation of a render job.
type JobView struct {
	ID              int64   `json:"id"`
	Token           string  `json:"token"`
	State           string  `json:"state"`
	ProgressStage   string  `json:"progress_stage,omitempty"`
	ProgressPercent float64 `json:"progress_percent"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	ErrorDetail     string  `json:"error_detail,omitempty"`
	Artifact        string  `json:"artifact,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
	CreatedAt       string  `json:"created_at"`
	StartedAt       string  `json:"started_at,omitempty"`
	FinishedAt      string  `json:"finished_at,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// HealthView summarizes job counts per state.
type HealthView struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// DependencyStatus reports availability of one external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// OutputsView summarizes the finalized output directory.
type OutputsView struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	JobDBPath    string             `json:"job_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	Queue        HealthView         `json:"queue"`
	Outputs      OutputsView        `json:"outputs"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// FontView describes one installed caption font.
type FontView struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// FontListResponse wraps the font catalog.
type FontListResponse struct {
	Fonts []FontView `json:"fonts"`
}

// JobsRetriedResponse reports how many failed jobs were re-queued.
type JobsRetriedResponse struct {
	Retried int64 `json:"retried"`
}

// JobsClearedResponse reports how many job records were deleted.
type JobsClearedResponse struct {
	Removed int64 `json:"removed"`
}

// ClearStorageResponse reports a storage purge.
type ClearStorageResponse struct {
	RemovedFiles int   `json:"removed_files"`
	FreedBytes   int64 `json:"freed_bytes"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
