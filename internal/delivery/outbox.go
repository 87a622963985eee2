package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// OutboxChannel drops messages into a local folder instead of sending
// them anywhere. Standalone installs run with this channel and forward
// the files by hand.
type OutboxChannel struct {
	dir string
}

// NewOutboxChannel creates a channel writing under dir.
func NewOutboxChannel(dir string) *OutboxChannel {
	return &OutboxChannel{dir: dir}
}

func (c *OutboxChannel) Name() string { return "outbox" }

func (c *OutboxChannel) Send(ctx context.Context, msg Message) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrap(err, "delivery: create outbox dir")
	}

	stamp := time.Now().Format("20060102_150405")
	bodyPath := filepath.Join(c.dir, stamp+"_message.txt")
	content := fmt.Sprintf("To: %s\n\n%s\n", msg.Recipient, msg.Body)
	if err := os.WriteFile(bodyPath, []byte(content), 0o644); err != nil {
		return eris.Wrap(err, "delivery: write outbox message")
	}

	if msg.Attachment != "" {
		name := msg.AttachmentName
		if name == "" {
			name = "attachment.txt"
		}
		attachPath := filepath.Join(c.dir, stamp+"_"+name)
		if err := os.WriteFile(attachPath, []byte(msg.Attachment), 0o644); err != nil {
			return eris.Wrap(err, "delivery: write outbox attachment")
		}
	}

	zap.L().Info("delivery: report written to outbox",
		zap.String("recipient", msg.Recipient),
		zap.String("path", bodyPath),
	)
	return nil
}
