package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditLog appends one JSON line per pipeline event to a monthly file
// (audit_YYYYMM.jsonl). Audit writes never fail the run; a write error
// is logged and dropped.
type AuditLog struct {
	dir string

	mu      sync.Mutex
	nowFunc func() time.Time
}

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource,omitempty"`
	Status      string    `json:"status"`
	Details     string    `json:"details,omitempty"`
}

// NewAuditLog creates an audit log rooted at dir, creating the
// directory if needed.
func NewAuditLog(dir string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AuditLog{dir: dir, nowFunc: time.Now}, nil
}

// Event appends an audit entry for the given run.
func (a *AuditLog) Event(executionID, action, resource, status, details string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.nowFunc()
	entry := AuditEntry{
		Timestamp:   now,
		ExecutionID: executionID,
		Action:      action,
		Resource:    resource,
		Status:      status,
		Details:     details,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		zap.L().Error("audit entry marshal failed", zap.Error(err))
		return
	}

	path := filepath.Join(a.dir, fmt.Sprintf("audit_%s.jsonl", now.Format("200601")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		zap.L().Error("audit log open failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		zap.L().Error("audit log write failed", zap.String("path", path), zap.Error(err))
	}
}

// Dir returns the directory audit files are written to.
func (a *AuditLog) Dir() string {
	return a.dir
}
