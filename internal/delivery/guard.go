package delivery

import (
	"context"

	"github.com/electro-tech/pricewatch/internal/resilience"
)

// GuardedChannel wraps a channel with a circuit breaker so a dead
// gateway stops eating send attempts. Rejected sends surface
// resilience.ErrCircuitOpen without touching the wire.
type GuardedChannel struct {
	inner   Channel
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps ch with breaker.
func NewGuarded(ch Channel, breaker *resilience.CircuitBreaker) *GuardedChannel {
	return &GuardedChannel{inner: ch, breaker: breaker}
}

func (g *GuardedChannel) Name() string { return g.inner.Name() }

func (g *GuardedChannel) Send(ctx context.Context, msg Message) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Send(ctx, msg)
	})
}
