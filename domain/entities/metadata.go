package entities

import (
	"time"
)

// RunMetadata describes one request execution.
type RunMetadata struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// RequestID is the id echoed in the x-request-id response header.
	RequestID string `json:"request_id,omitempty"`

	// Component is the id of the routed component, empty when nothing matched.
	Component string `json:"component,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// NewRunMetadata creates a new RunMetadata with the given start and end times.
func NewRunMetadata(start, end time.Time) *RunMetadata {
	return &RunMetadata{
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
}

// WithRequestID sets the request id.
func (m *RunMetadata) WithRequestID(id string) *RunMetadata {
	m.RequestID = id
	return m
}

// WithComponent sets the component id.
func (m *RunMetadata) WithComponent(id string) *RunMetadata {
	m.Component = id
	return m
}
