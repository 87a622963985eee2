package source

import (
	"context"
	"io"
	"net"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
)

// FTPOptions configures the FTP collector.
type FTPOptions struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	User     string        `yaml:"user" mapstructure:"user"`
	Password string        `yaml:"password" mapstructure:"password"`
	Dir      string        `yaml:"dir" mapstructure:"dir"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// FTPSource collects message drops from a directory on an FTP server.
// Each Collect and Ack uses a fresh connection; drops are small and the
// pipeline runs once a day, so connection reuse buys nothing.
type FTPSource struct {
	opts      FTPOptions
	collected []string
}

// NewFTPSource creates an FTPSource. The address defaults to port 21
// when none is given.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if _, _, err := net.SplitHostPort(opts.Addr); err != nil {
		opts.Addr = net.JoinHostPort(opts.Addr, "21")
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPSource{opts: opts}
}

func (s *FTPSource) Name() string { return "ftp_drop" }

func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.opts.Addr, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

// Collect lists the remote drop directory and retrieves every eligible
// file. Files that fail to download are skipped with a warning and stay
// on the server for the next pass.
func (s *FTPSource) Collect(ctx context.Context) ([]model.RawMessage, error) {
	log := zap.L().With(zap.String("component", "source.ftp"))

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	entries, err := conn.List(s.opts.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp list %s", s.opts.Dir)
	}

	s.collected = s.collected[:0]
	var messages []model.RawMessage
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.Type != ftp.EntryTypeFile || !eligibleName(entry.Name) {
			continue
		}

		handle, receivedAt, ok := parseDropName(entry.Name)
		if !ok {
			log.Warn("skipping drop file with unparseable name", zap.String("file", entry.Name))
			continue
		}

		resp, err := conn.Retr(path.Join(s.opts.Dir, entry.Name))
		if err != nil {
			log.Warn("skipping undownloadable drop file", zap.String("file", entry.Name), zap.Error(err))
			continue
		}
		text, err := io.ReadAll(resp)
		resp.Close() //nolint:errcheck
		if err != nil {
			log.Warn("skipping unreadable drop file", zap.String("file", entry.Name), zap.Error(err))
			continue
		}

		messages = append(messages, model.RawMessage{
			SenderHandle: handle,
			Text:         string(text),
			ReceivedAt:   receivedAt,
		})
		s.collected = append(s.collected, entry.Name)
	}

	log.Info("collected ftp drops", zap.Int("count", len(messages)), zap.String("dir", s.opts.Dir))
	return messages, nil
}

// Ping logs in and out without touching the drop directory.
func (s *FTPSource) Ping(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	return conn.Quit()
}

// Ack renames collected files with the processed_ prefix on the server.
func (s *FTPSource) Ack(ctx context.Context) error {
	if len(s.collected) == 0 {
		return nil
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit() //nolint:errcheck

	for _, name := range s.collected {
		from := path.Join(s.opts.Dir, name)
		to := path.Join(s.opts.Dir, processedPrefix+name)
		if err := conn.Rename(from, to); err != nil {
			return eris.Wrapf(err, "ftp mark processed %s", name)
		}
	}
	s.collected = nil
	return nil
}
