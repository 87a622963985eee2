package resilience

import "time"

// OutboxEntry represents a failed report delivery that can be replayed later.
type OutboxEntry struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"` // "webhook" or "outbox"
	Payload      []byte    `json:"payload"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// OutboxFilter specifies criteria for querying parked deliveries.
type OutboxFilter struct {
	Channel string `json:"channel,omitempty"` // "webhook", "outbox", or "" for all
	Limit   int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *OutboxEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}
