package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/resilience"
)

// Redelivery schedule for parked messages. Follows the same doubling
// shape as the in-run retry policy, stretched to operational scale: a
// report that could not go out now is worth a try on the next runs,
// not in the next few seconds.
const (
	parkInitialBackoff = 5 * time.Minute
	parkMaxBackoff     = 6 * time.Hour
	parkMaxRetries     = 3
)

// outboxStore is the slice of the price store the dispatcher needs for
// durable delivery.
type outboxStore interface {
	EnqueueOutbox(ctx context.Context, entry resilience.OutboxEntry) error
	DequeueOutbox(ctx context.Context, filter resilience.OutboxFilter) ([]resilience.OutboxEntry, error)
	IncrementOutboxRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveOutbox(ctx context.Context, id string) error
}

// Dispatcher sends through a channel and keeps undelivered reports in
// the store's delivery outbox so a later run can replay them.
type Dispatcher struct {
	channel Channel
	store   outboxStore
}

// NewDispatcher creates a dispatcher over ch backed by st.
func NewDispatcher(ch Channel, st outboxStore) *Dispatcher {
	return &Dispatcher{channel: ch, store: st}
}

// ChannelName reports the underlying channel's name.
func (d *Dispatcher) ChannelName() string { return d.channel.Name() }

// Send passes msg straight to the channel. Retrying and parking are
// the caller's calls; see Park.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	return d.channel.Send(ctx, msg)
}

// Park stores msg in the delivery outbox after the caller has given up
// sending it. The first redelivery slot opens after the initial
// backoff.
func (d *Dispatcher) Park(ctx context.Context, msg Message, cause error) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "delivery: marshal parked message")
	}

	now := time.Now()
	entry := resilience.OutboxEntry{
		Channel:      d.channel.Name(),
		Payload:      payload,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		MaxRetries:   parkMaxRetries,
		NextRetryAt:  now.Add(parkBackoff(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := d.store.EnqueueOutbox(ctx, entry); err != nil {
		return eris.Wrap(err, "delivery: park message")
	}

	zap.L().Warn("delivery: report parked for redelivery",
		zap.String("channel", entry.Channel),
		zap.String("recipient", msg.Recipient),
		zap.Error(cause),
	)
	return nil
}

// Replay re-sends every due parked message for this channel: removed
// on success, rescheduled on failure. Entries out of retries stay in
// the table for operator inspection. Returns counts of delivered and
// still-failing messages.
func (d *Dispatcher) Replay(ctx context.Context) (delivered, failed int, err error) {
	entries, err := d.store.DequeueOutbox(ctx, resilience.OutboxFilter{Channel: d.channel.Name()})
	if err != nil {
		return 0, 0, eris.Wrap(err, "delivery: dequeue outbox")
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}

		var msg Message
		if err := json.Unmarshal(entry.Payload, &msg); err != nil {
			// An undecodable payload can never send; drop it.
			zap.L().Error("delivery: dropping malformed outbox entry",
				zap.String("id", entry.ID),
				zap.Error(err),
			)
			if rmErr := d.store.RemoveOutbox(ctx, entry.ID); rmErr != nil {
				return delivered, failed, eris.Wrap(rmErr, "delivery: remove malformed entry")
			}
			continue
		}

		if sendErr := d.channel.Send(ctx, msg); sendErr != nil {
			failed++
			next := time.Now().Add(parkBackoff(entry.RetryCount + 1))
			if incErr := d.store.IncrementOutboxRetry(ctx, entry.ID, next, sendErr.Error()); incErr != nil {
				return delivered, failed, eris.Wrap(incErr, "delivery: reschedule parked entry")
			}
			continue
		}

		delivered++
		if rmErr := d.store.RemoveOutbox(ctx, entry.ID); rmErr != nil {
			return delivered, failed, eris.Wrap(rmErr, "delivery: remove delivered entry")
		}
	}

	if delivered+failed > 0 {
		zap.L().Info("delivery: outbox replay finished",
			zap.String("channel", d.channel.Name()),
			zap.Int("delivered", delivered),
			zap.Int("failed", failed),
		)
	}
	return delivered, failed, nil
}

// parkBackoff returns the wait before redelivery attempt n.
func parkBackoff(n int) time.Duration {
	d := parkInitialBackoff
	for i := 0; i < n; i++ {
		d *= 2
		if d >= parkMaxBackoff {
			return parkMaxBackoff
		}
	}
	return d
}
