package domain

import "time"

// JobKind enumerates supported generation categories.
type JobKind string

const (
	KindText  JobKind = "text"
	KindImage JobKind = "image"
	KindVideo JobKind = "video"
)

// RequiresResearch reports whether the kind renders from completed structured data.
func (k JobKind) RequiresResearch() bool {
	return k == KindImage || k == KindVideo
}

func (k JobKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobInput records the resolved parameters a job was dispatched with.
type JobInput struct {
	Template    string            `json:"template,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	AspectRatio string            `json:"aspect_ratio,omitempty"`
	Duration    int               `json:"duration_seconds,omitempty"`
	// Rendered is the final prompt sent to the backend.
	Rendered string `json:"rendered"`
}

// JobOutput is either inline text or a locator for a stored asset.
type JobOutput struct {
	Text     string `json:"text,omitempty"`
	Locator  string `json:"locator,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// GenerationJob tracks one content artifact through its lifecycle.
type GenerationJob struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Backend     string     `json:"backend"`
	Input       JobInput   `json:"input"`
	Output      *JobOutput `json:"output"`
	Handle      string     `json:"handle,omitempty"`
	Attempts    int        `json:"attempts"`
	Error       *string    `json:"error"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.Input.Variables != nil {
		out.Input.Variables = make(map[string]string, len(j.Input.Variables))
		for k, v := range j.Input.Variables {
			out.Input.Variables[k] = v
		}
	}
	if j.Output != nil {
		o := *j.Output
		out.Output = &o
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.Deadline != nil {
		d := *j.Deadline
		out.Deadline = &d
	}
	if j.CompletedAt != nil {
		c := *j.CompletedAt
		out.CompletedAt = &c
	}
	return &out
}

// Complete settles the job with its output.
func (j *GenerationJob) Complete(out JobOutput, now time.Time) {
	j.Status = JobCompleted
	j.Output = &out
	j.Error = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// Fail settles the job with a non-empty error description.
func (j *GenerationJob) Fail(reason string, now time.Time) {
	if reason == "" {
		reason = "generation failed"
	}
	j.Status = JobFailed
	j.Output = nil
	j.Error = &reason
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *GenerationJob) Cancel(now time.Time) {
	j.Status = JobCancelled
	j.Output = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
}
