// Package svcctx provides service context for dependency injection via
// context. This package is separate from server to avoid import cycles with
// endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/pagevoice/pagevoice/internal/audio"
	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/config"
	"github.com/pagevoice/pagevoice/internal/docstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/orchestrator"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DocStore     docstore.Store
	BlobStore    blobstore.Store
	Queue        taskqueue.Queue
	Ledger       *ledger.Ledger
	JobStore     *jobs.Store
	Orchestrator *orchestrator.Orchestrator
	Reassembler  *audio.Reassembler
	ConfigMgr    *config.Manager
	Logger       *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DocStoreFrom extracts the document store from context.
func DocStoreFrom(ctx context.Context) docstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.DocStore
	}
	return nil
}

// BlobStoreFrom extracts the blob store from context.
func BlobStoreFrom(ctx context.Context) blobstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.BlobStore
	}
	return nil
}

// QueueFrom extracts the task queue from context.
func QueueFrom(ctx context.Context) taskqueue.Queue {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// LedgerFrom extracts the credit ledger from context.
func LedgerFrom(ctx context.Context) *ledger.Ledger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ledger
	}
	return nil
}

// JobStoreFrom extracts the job store from context.
func JobStoreFrom(ctx context.Context) *jobs.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.JobStore
	}
	return nil
}

// OrchestratorFrom extracts the orchestrator from context.
func OrchestratorFrom(ctx context.Context) *orchestrator.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// ReassemblerFrom extracts the audio reassembler from context.
func ReassemblerFrom(ctx context.Context) *audio.Reassembler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reassembler
	}
	return nil
}

// ConfigMgrFrom extracts the config manager from context.
func ConfigMgrFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
