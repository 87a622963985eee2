package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
)

// DirSource reads message drops from a local directory.
type DirSource struct {
	dir       string
	collected []string
}

// NewDirSource creates a DirSource reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Name() string { return "text_message" }

// Collect reads every eligible drop file in the directory. Files that
// cannot be read or whose name does not carry a sender handle are
// skipped with a warning; they stay in place for the operator.
func (s *DirSource) Collect(ctx context.Context) ([]model.RawMessage, error) {
	log := zap.L().With(zap.String("component", "source.dir"))

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read dir %s", s.dir)
	}

	s.collected = s.collected[:0]
	var messages []model.RawMessage
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !eligibleName(name) {
			continue
		}

		handle, receivedAt, ok := parseDropName(name)
		if !ok {
			log.Warn("skipping drop file with unparseable name", zap.String("file", name))
			continue
		}

		text, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			log.Warn("skipping unreadable drop file", zap.String("file", name), zap.Error(err))
			continue
		}

		messages = append(messages, model.RawMessage{
			SenderHandle: handle,
			Text:         string(text),
			ReceivedAt:   receivedAt,
		})
		s.collected = append(s.collected, name)
	}

	log.Info("collected drop files", zap.Int("count", len(messages)), zap.String("dir", s.dir))
	return messages, nil
}

// Ack renames collected files with the processed_ prefix so the next
// pass skips them.
func (s *DirSource) Ack(ctx context.Context) error {
	for _, name := range s.collected {
		from := filepath.Join(s.dir, name)
		to := filepath.Join(s.dir, processedPrefix+name)
		if err := os.Rename(from, to); err != nil {
			return eris.Wrapf(err, "source: mark processed %s", name)
		}
	}
	s.collected = nil
	return nil
}

// Ping verifies the drop directory exists.
func (s *DirSource) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return eris.Wrapf(err, "source: stat drop dir %s", s.dir)
	}
	if !info.IsDir() {
		return eris.Errorf("source: drop path %s is not a directory", s.dir)
	}
	return nil
}
