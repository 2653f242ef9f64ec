// Package events provides an event system for pool and connection notifications.
package events

import (
	"fmt"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// EventWorkerExit is emitted when a worker goroutine leaves its loop
	EventWorkerExit EventType = "worker_exit"
	// EventJobPanic is emitted when a job panics and the worker recovers
	EventJobPanic EventType = "job_panic"
	// EventRequestServed is emitted after a connection's response is written
	EventRequestServed EventType = "request_served"
	// EventPoolClosed is emitted once every worker has been joined
	EventPoolClosed EventType = "pool_closed"
)

// Event represents a pool or connection event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	WorkerID   int    `json:"worker_id,omitempty"`
	Status     int    `json:"status,omitempty"`
	Path       string `json:"path,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Error      string `json:"error,omitempty"`
}

func workerSource(id int) string {
	return fmt.Sprintf("worker-%d", id)
}

// NewWorkerExitEvent creates a worker exit event
func NewWorkerExitEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerExit,
		Timestamp: time.Now(),
		Source:    workerSource(workerID),
		Data: EventData{
			WorkerID: workerID,
		},
	}
}

// NewJobPanicEvent creates a job panic event
func NewJobPanicEvent(workerID int, recovered any) Event {
	return Event{
		Type:      EventJobPanic,
		Timestamp: time.Now(),
		Source:    workerSource(workerID),
		Data: EventData{
			WorkerID: workerID,
			Error:    fmt.Sprint(recovered),
		},
	}
}

// NewRequestServedEvent creates a request served event
func NewRequestServedEvent(connID, remoteAddr, path string, status int, elapsed time.Duration) Event {
	return Event{
		Type:      EventRequestServed,
		Timestamp: time.Now(),
		Source:    connID,
		Data: EventData{
			Status:     status,
			Path:       path,
			RemoteAddr: remoteAddr,
			Duration:   elapsed.String(),
		},
	}
}

// NewPoolClosedEvent creates a pool closed event
func NewPoolClosedEvent(poolName string) Event {
	return Event{
		Type:      EventPoolClosed,
		Timestamp: time.Now(),
		Source:    poolName,
	}
}
