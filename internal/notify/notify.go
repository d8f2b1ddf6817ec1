// Package notify delivers cycle error reports to operators.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message is one error report for one stage of a poll cycle.
type Message struct {
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage"`
	Summary string    `json:"summary"`
	Errors  []string  `json:"errors"`
	SentAt  time.Time `json:"sent_at"`
}

// NewMessage builds the report for count errors raised while stage ran.
func NewMessage(runID, stage string, errs []error, now time.Time) Message {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return Message{
		RunID:   runID,
		Stage:   stage,
		Summary: fmt.Sprintf("Encountered %d errors while %s", len(errs), stage),
		Errors:  lines,
		SentAt:  now.UTC(),
	}
}

func (m Message) encode() ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return payload, nil
}

// Notifier delivers a message to one backend.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes the report to the logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Error(msg.Summary,
		zap.String("run_id", msg.RunID),
		zap.String("stage", msg.Stage),
		zap.Strings("errors", msg.Errors),
	)
	return nil
}

// Multi fans a message out to every backend. Backend failures are logged
// and never returned.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, msg Message) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			m.logger.Warn("notification delivery failed",
				zap.String("notifier", fmt.Sprintf("%T", n)),
				zap.String("stage", msg.Stage),
				zap.Error(err),
			)
		}
	}
	return nil
}
