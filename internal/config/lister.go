package config

import (
	"context"

	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

// FileLister re-reads the instance file on every call, giving the
// scheduler's best-effort refresh a live path: editing the file (or its
// env overrides) takes effect on the next tick without a restart.
type FileLister struct {
	path string
}

// NewFileLister returns an InstanceLister-compatible reader over path.
func NewFileLister(path string) *FileLister {
	return &FileLister{path: path}
}

// List implements scheduler.InstanceLister.
func (l *FileLister) List(ctx context.Context) ([]oracle.ProtocolInstance, error) {
	return Load(l.path)
}
