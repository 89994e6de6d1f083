package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Wakeup is the host background-wakeup capability: "notify me when
// connectivity returns". The engine does not depend on any specific host
// mechanism; it only exposes Coordinator.ResumeSync as the entry point.
// Either implementation is best-effort - the coordinator's periodic trigger
// remains the fallback.
type Wakeup interface {
	// Start begins watching for connectivity; resume is called when sync
	// should be attempted again.
	Start(resume func())

	// Stop terminates watching.
	Stop()
}

// DeferredWakeup relies entirely on a host-provided wakeup: the host calls
// Coordinator.ResumeSync itself (mobile background fetch, systemd timer, ...).
type DeferredWakeup struct{}

func (DeferredWakeup) Start(resume func()) {}
func (DeferredWakeup) Stop()               {}

// EagerWakeup polls the ping endpoint and fires resume on the first
// offline-to-online transition. Used on deployment targets without a host
// connectivity signal.
type EagerWakeup struct {
	apiClient httpclient.ClientAPI
	metadata  storage.MetadataStorage
	logger    *slog.Logger
	interval  time.Duration
	stopC     chan struct{}
	doneC     chan struct{}
	started   atomic.Bool
	stopOnce  sync.Once
}

// NewEagerWakeup creates a polling wakeup with the given probe interval.
func NewEagerWakeup(
	apiClient httpclient.ClientAPI,
	metadata storage.MetadataStorage,
	logger *slog.Logger,
	interval time.Duration,
) *EagerWakeup {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &EagerWakeup{
		apiClient: apiClient,
		metadata:  metadata,
		logger:    logger,
		interval:  interval,
		stopC:     make(chan struct{}),
		doneC:     make(chan struct{}),
	}
}

// Start launches the probe loop. Repeated calls are no-ops.
func (w *EagerWakeup) Start(resume func()) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.probeLoop(resume)
}

// Stop terminates the probe loop and waits for it to exit.
// Safe to call without a prior Start.
func (w *EagerWakeup) Stop() {
	if !w.started.Load() {
		return
	}
	w.stopOnce.Do(func() {
		close(w.stopC)
	})
	<-w.doneC
}

// probeLoop пингует сервер и дергает resume при восстановлении связи
func (w *EagerWakeup) probeLoop(resume func()) {
	defer close(w.doneC)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	offline := false

	for {
		select {
		case <-w.stopC:
			return
		case <-ticker.C:
			online := w.probe()
			if online && offline {
				w.logger.Info("Connectivity restored, resuming sync")
				resume()
			}
			offline = !online
		}
	}
}

// probe выполняет один ping с коротким таймаутом
func (w *EagerWakeup) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientID, err := w.metadata.ClientID(ctx)
	if err != nil {
		return false
	}

	resp, err := w.apiClient.Ping(ctx, api.PingRequest{ClientID: clientID})
	if err != nil {
		return false
	}

	return resp.Pong && resp.SyncAvailable
}
