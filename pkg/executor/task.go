package executor

import (
	"time"

	"github.com/google/uuid"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// DefaultSubject is the bus subject tasks are dispatched on
const DefaultSubject = "pythia.tasks"

// Task is the wire form of one processor invocation
type Task struct {
	ID        string           `json:"id"`
	Processor string           `json:"processor"`
	Version   string           `json:"version"`
	Config    processor.Config `json:"config,omitempty"`
	Fields    article.FieldBag `json:"fields"`
	TraceID   string           `json:"trace_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// Reply is the worker's answer to a Task. Error is empty on success.
type Reply struct {
	TaskID string           `json:"task_id"`
	Fields article.FieldBag `json:"fields,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// NewTask describes running p on bag within the run identified by traceID.
func NewTask(p processor.Processor, bag article.FieldBag, traceID string) Task {
	d := p.Descriptor()
	return Task{
		ID:        uuid.NewString(),
		Processor: d.Name,
		Version:   d.Version,
		Config:    p.Config(),
		Fields:    bag,
		TraceID:   traceID,
		CreatedAt: time.Now().UTC(),
	}
}
