package dto

type ListJobsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

type ListJobsResponse struct {
	Jobs  []JobDTO `json:"jobs"`
	Count int      `json:"count"`
}

type JobDTO struct {
	JobID        uint64   `json:"job_id"`
	DocumentName string   `json:"document_name"`
	UserName     string   `json:"user_name"`
	MachineName  string   `json:"machine_name"`
	Origin       string   `json:"origin"`
	OutputFormat string   `json:"output_format"`
	OutputFiles  []string `json:"output_files"`
	PageCount    int      `json:"page_count"`
	DataSize     int      `json:"data_size"`
	Status       string   `json:"status"`
	Failure      string   `json:"failure,omitempty"`
	CapturedAt   string   `json:"captured_at"`
	CompletedAt  string   `json:"completed_at,omitempty"`
}

type StatusResponse struct {
	Service       string `json:"service"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	JobsSeen      int    `json:"jobs_seen"`
}
