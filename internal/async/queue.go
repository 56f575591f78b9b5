package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one admission ticket; the handler looks the real work up by ID.
type Job struct {
	ID          uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. ctx carries the per-job timeout.
type Handler interface {
	Handle(ctx context.Context, job Job)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job)

func (f HandlerFunc) Handle(ctx context.Context, job Job) { f(ctx, job) }

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}
