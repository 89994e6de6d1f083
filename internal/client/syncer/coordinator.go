// Package syncer contains the client-side sync coordinator: the state
// machine that decides when to run a sync cycle, drains the pending queue
// into one batch, applies the server's response and merges the change feed
// into the local entity cache.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

// ErrSyncInFlight возвращается из ForceSync когда цикл уже выполняется.
// Single-flight: новый триггер во время Syncing - это no-op.
var ErrSyncInFlight = errors.New("sync cycle already in flight")

// State of the coordinator.
type State int32

const (
	// StateIdle - координатор ждет следующего триггера
	StateIdle State = iota
	// StateSyncing - цикл синхронизации выполняется
	StateSyncing
	// StateBackoff - последний цикл упал на транспорте, ждем backoff
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// CycleResult describes one completed (or failed) sync cycle. Published on
// the Events channel so callers can observe sync completion without polling.
type CycleResult struct {
	Err          error
	At           time.Time
	Processed    int // операций подтверждено сервером
	Failed       int // операций с ошибкой (будут повторены)
	DeadLettered int // операций перемещено в dead-letter
	Pulled       int // изменений получено от других устройств
	Pending      int // операций осталось в очереди
}

// Config задает параметры координатора
type Config struct {
	// Interval периодического триггера
	Interval time.Duration
	// Timeout одного цикла (POST /sync/batch)
	Timeout time.Duration
	// BackoffBase базовая задержка после транспортной ошибки
	BackoffBase time.Duration
	// BackoffCap максимальная задержка
	BackoffCap time.Duration
	// BackoffJitter амплитуда джиттера
	BackoffJitter time.Duration
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Interval:      time.Minute,
		Timeout:       30 * time.Second,
		BackoffBase:   2 * time.Second,
		BackoffCap:    5 * time.Minute,
		BackoffJitter: 500 * time.Millisecond,
	}
}

// Coordinator is an explicit service object: constructed once with injected
// dependencies, started and stopped by the owner. No import-time side
// effects, no global state.
type Coordinator struct {
	apiClient httpclient.ClientAPI
	queue     storage.QueueStorage
	cache     storage.CacheStorage
	metadata  storage.MetadataStorage
	logger    *slog.Logger
	cfg       Config

	// syncMu обеспечивает single-flight: максимум один цикл одновременно
	syncMu sync.Mutex
	state  atomic.Int32

	backoff     *backoff
	nextAttempt atomic.Int64 // unix nanos, гейт для периодического триггера

	triggerC chan struct{}
	events   chan CycleResult
	stopC    chan struct{}
	doneC    chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a coordinator. Zero config fields fall back to DefaultConfig.
func New(
	apiClient httpclient.ClientAPI,
	queue storage.QueueStorage,
	cache storage.CacheStorage,
	metadata storage.MetadataStorage,
	logger *slog.Logger,
	cfg Config,
) *Coordinator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.BackoffJitter <= 0 {
		cfg.BackoffJitter = def.BackoffJitter
	}

	return &Coordinator{
		apiClient: apiClient,
		queue:     queue,
		cache:     cache,
		metadata:  metadata,
		logger:    logger,
		cfg:       cfg,
		backoff:   newBackoff(cfg.BackoffBase, cfg.BackoffCap, cfg.BackoffJitter),
		triggerC:  make(chan struct{}, 1),
		events:    make(chan CycleResult, 16),
		stopC:     make(chan struct{}),
		doneC:     make(chan struct{}),
	}
}

// Start launches the coordinator loop. Safe to call once.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run(ctx)
	})
}

// Stop terminates the loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopC)
	})
	if c.started.Load() {
		<-c.doneC
	}
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Events returns the subscription channel for completed cycles. Events are
// dropped if the subscriber does not keep up; the channel is never closed
// while the coordinator runs.
func (c *Coordinator) Events() <-chan CycleResult {
	return c.events
}

// ResumeSync is the single entry point the host calls when connectivity
// returns or a background wakeup fires. Non-blocking; coalesces with any
// already-pending trigger and bypasses the backoff gate (a connectivity
// event is better information than a timer).
func (c *Coordinator) ResumeSync() {
	c.nextAttempt.Store(0)
	select {
	case c.triggerC <- struct{}{}:
	default:
	}
}

// ForceSync runs one cycle synchronously (user-invoked "sync now").
// Returns ErrSyncInFlight if a cycle is already running.
func (c *Coordinator) ForceSync(ctx context.Context) (*CycleResult, error) {
	result := c.runCycle(ctx)
	if result == nil {
		return nil, ErrSyncInFlight
	}
	return result, result.Err
}

// run is the trigger loop: periodic timer + external wakeups.
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.doneC)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopC:
			return
		case <-ticker.C:
			// Периодический триггер уважает backoff окно
			if time.Now().UnixNano() < c.nextAttempt.Load() {
				continue
			}
			c.runCycle(ctx)
		case <-c.triggerC:
			c.runCycle(ctx)
		}
	}
}

// runCycle executes one sync cycle. Returns nil when another cycle holds the
// single-flight lock (the trigger is a no-op by design of §single-flight).
func (c *Coordinator) runCycle(ctx context.Context) *CycleResult {
	if !c.syncMu.TryLock() {
		return nil
	}
	defer c.syncMu.Unlock()

	c.state.Store(int32(StateSyncing))

	result := c.doCycle(ctx)

	if result.Err != nil {
		// Транспортная ошибка: очередь не тронута, retry_count не растет -
		// сервер этот батч не видел. Планируем повтор с backoff.
		delay := c.backoff.Next()
		c.nextAttempt.Store(time.Now().Add(delay).UnixNano())
		c.state.Store(int32(StateBackoff))

		c.logger.Warn("Sync cycle failed, backing off",
			"error", result.Err,
			"retry_in", delay)

		time.AfterFunc(delay, c.ResumeSync)
	} else {
		// Полностью успешный цикл сбрасывает backoff к базовому
		c.backoff.Reset()
		c.nextAttempt.Store(0)
		c.state.Store(int32(StateIdle))
	}

	c.publish(*result)
	return result
}

// doCycle собирает батч, отправляет его и применяет результат.
func (c *Coordinator) doCycle(ctx context.Context) *CycleResult {
	result := &CycleResult{At: time.Now()}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	clientID, err := c.metadata.ClientID(cctx)
	if err != nil {
		result.Err = err
		return result
	}

	lastSync, err := c.metadata.GetLastSyncTimestamp(cctx)
	if err != nil {
		c.logger.Warn("Failed to get last sync timestamp, using 0", "error", err)
		lastSync = 0
	}

	// Снимок очереди: операции, поставленные во время цикла,
	// просто уедут со следующим батчем
	pending, err := c.queue.ListPending(cctx)
	if err != nil {
		result.Err = err
		return result
	}

	ops := make([]api.SyncOperation, 0, len(pending))
	for _, op := range pending {
		ops = append(ops, op.ToAPI())
	}

	c.logger.Info("Starting sync cycle",
		"client_id", clientID,
		"operations", len(ops),
		"last_sync", lastSync)

	// Пустой батч - это pull-only цикл: забираем чужие изменения
	resp, err := c.apiClient.SyncBatch(cctx, api.SyncRequest{
		ClientID:          clientID,
		Operations:        ops,
		LastSyncTimestamp: lastSync,
	})
	if err != nil {
		result.Err = err
		return result
	}

	c.applyResponse(cctx, resp, result)

	count, err := c.queue.CountPending(cctx)
	if err == nil {
		result.Pending = count
	}

	c.logger.Info("Sync cycle completed",
		"processed", result.Processed,
		"failed", result.Failed,
		"dead_lettered", result.DeadLettered,
		"pulled", result.Pulled,
		"pending", result.Pending)

	return result
}

// applyResponse применяет ответ сервера к локальному состоянию
func (c *Coordinator) applyResponse(ctx context.Context, resp *api.SyncResponse, result *CycleResult) {
	if err := c.queue.RemoveProcessed(ctx, resp.ProcessedOperations); err != nil {
		c.logger.Error("Failed to remove processed operations", "error", err)
	} else {
		result.Processed = len(resp.ProcessedOperations)
	}

	for _, failed := range resp.FailedOperations {
		if failed.Classification == api.ClassPermanent {
			// Постоянная ошибка никогда не ретраится
			if err := c.queue.MoveToDeadLetter(ctx, failed.OperationID, failed.Error); err != nil {
				c.logger.Error("Failed to dead-letter operation",
					"operation_id", failed.OperationID, "error", err)
				continue
			}
			result.DeadLettered++
			continue
		}

		deadLettered, err := c.queue.BumpRetry(ctx, failed.OperationID)
		if err != nil {
			c.logger.Error("Failed to bump retry count",
				"operation_id", failed.OperationID, "error", err)
			continue
		}
		if deadLettered {
			result.DeadLettered++
		} else {
			result.Failed++
		}
	}

	// Мержим чужие изменения в локальный кэш: серверное значение
	// всегда перезаписывает устаревшую проекцию
	for _, change := range resp.ServerChanges {
		var err error
		switch change.Operation {
		case api.OpDelete:
			err = c.cache.DeleteRecord(ctx, change.TableName, change.RecordID)
		default:
			err = c.cache.SaveRecord(ctx, change.TableName, change.RecordID, change.Data)
		}
		if err != nil {
			c.logger.Warn("Failed to merge server change",
				"table", change.TableName,
				"record_id", change.RecordID,
				"error", err)
			continue
		}
		result.Pulled++
	}

	// Продвигаем watermark; хранилище гарантирует монотонность
	if err := c.metadata.SaveLastSyncTimestamp(ctx, resp.SyncTimestamp); err != nil {
		c.logger.Warn("Failed to save last sync timestamp", "error", err)
	}
}

// publish отправляет событие подписчику, не блокируясь
func (c *Coordinator) publish(result CycleResult) {
	select {
	case c.events <- result:
	default:
		// Подписчик не успевает - событие отбрасывается
	}
}
