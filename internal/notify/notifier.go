package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/webhook"
)

const publishTimeout = 2 * time.Second

// Publisher is an external outcome channel such as Redis.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifier forwards dispatcher outcomes to the hub and an optional
// publisher. Publisher failures are logged and dropped.
type Notifier struct {
	hub       *Hub
	publisher Publisher
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewNotifier(hub *Hub, publisher Publisher, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{
		hub:       hub,
		publisher: publisher,
		logger:    logger.Named("notify"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) ObserveOutcome(ctx context.Context, outcome webhook.Outcome, elapsed time.Duration) {
	ev := FromOutcome(outcome, elapsed, n.now())

	if n.hub != nil {
		n.hub.Publish(ev)
	}
	if n.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, ev); err != nil {
		n.logger.Warnw("failed to publish webhook outcome", "event", ev.Event, "error", err)
	}
}

func FromOutcome(outcome webhook.Outcome, elapsed time.Duration, at time.Time) Event {
	ev := Event{
		Event:          outcome.Event,
		ConversationID: outcome.ConversationID,
		Success:        outcome.Success,
		StatusCode:     outcome.StatusCode,
		Detail:         outcome.Message,
		ElapsedMS:      float64(elapsed.Microseconds()) / 1000,
		Timestamp:      at,
	}
	if !outcome.Success {
		ev.Detail = outcome.Description
		ev.Kind = outcome.Kind.String()
	}
	return ev
}
