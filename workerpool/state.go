package workerpool

// Status is the lifecycle state of one worker.
type Status int

const (
	StatusLoading Status = iota
	StatusIdle
	StatusBusy
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// WorkerState is a point-in-time view of one worker.
type WorkerState struct {
	ID        int    `json:"id"`
	Status    Status `json:"status"`
	LastError string `json:"last_error,omitempty"`
	// Jobs counts completed jobs, successful or not.
	Jobs int64 `json:"jobs"`
}

// Counts tallies workers by status.
type Counts struct {
	Loading int `json:"loading"`
	Idle    int `json:"idle"`
	Busy    int `json:"busy"`
	Failed  int `json:"failed"`
}

// Total returns the number of workers counted.
func (c Counts) Total() int {
	return c.Loading + c.Idle + c.Busy + c.Failed
}

// Serving reports whether any worker can take or is running a job.
func (c Counts) Serving() bool {
	return c.Idle+c.Busy > 0
}

func countStates(states []WorkerState) Counts {
	var c Counts
	for _, s := range states {
		switch s.Status {
		case StatusLoading:
			c.Loading++
		case StatusIdle:
			c.Idle++
		case StatusBusy:
			c.Busy++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// ByStatus keys the counts by status name.
func (c Counts) ByStatus() map[string]int {
	return map[string]int{
		StatusLoading.String(): c.Loading,
		StatusIdle.String():    c.Idle,
		StatusBusy.String():    c.Busy,
		StatusFailed.String():  c.Failed,
	}
}
