// Package scheduler hands validation triggers from the lifecycle API to the
// orchestrator, in process or through Kafka.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrQueueClosed is returned by Enqueue after shutdown.
var ErrQueueClosed = errors.New("validation queue closed")

// Scheduler accepts a case for asynchronous validation.
type Scheduler interface {
	Enqueue(ctx context.Context, caseID string) error
}

// Runner executes one validation run. It must not panic or block forever.
type Runner interface {
	Run(ctx context.Context, caseID string)
}

// Trigger is the message carried for one requested run.
type Trigger struct {
	CaseID      string    `json:"case_id"`
	RequestID   string    `json:"request_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func decodeTrigger(value []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(value, &t); err != nil {
		return Trigger{}, fmt.Errorf("decode trigger: %w", err)
	}
	if t.CaseID == "" {
		return Trigger{}, errors.New("decode trigger: case_id missing")
	}
	return t, nil
}

var (
	enqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kyc_scheduler_enqueued_total",
		Help: "Validation triggers accepted by backend",
	}, []string{"backend"})

	dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kyc_scheduler_dispatched_total",
		Help: "Validation triggers handed to the orchestrator, by backend and result",
	}, []string{"backend", "result"})
)
