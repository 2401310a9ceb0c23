// Package coordinator bounds how many profiling runs execute concurrently across a
// fleet of engine processes, using etcd leases as the distributed slot count: each
// in-flight run holds one leased key under a namespace, and Acquire refuses once the
// namespace already holds maxConcurrent keys.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Limiter bounds concurrent profiling runs across processes sharing one etcd cluster.
type Limiter struct {
	client    *clientv3.Client
	namespace string
	maxSlots  int
	ttl       int

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// Config configures a Limiter.
type Config struct {
	// Endpoints is the etcd cluster address list.
	Endpoints []string

	// Namespace is the etcd key prefix run slots are stored under. Default
	// "adaptprofiler/runs".
	Namespace string

	// MaxConcurrent is the maximum number of simultaneously held run slots. Must be
	// positive.
	MaxConcurrent int

	// TTL is the lease time-to-live in seconds a slot must be renewed within. Default
	// 30.
	TTL int
}

// NewLimiter connects to etcd and returns a Limiter bounding concurrent runs to
// cfg.MaxConcurrent.
func NewLimiter(cfg Config) (*Limiter, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("coordinator: endpoints must not be empty")
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("coordinator: max_concurrent must be positive")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "adaptprofiler/runs"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("coordinator: etcd health check failed: %w", err)
	}

	return &Limiter{
		client:    cli,
		namespace: namespace,
		maxSlots:  cfg.MaxConcurrent,
		ttl:       ttl,
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
	}, nil
}

// Release ends a held run slot for runID and stops its keepalive. No-op if runID does
// not currently hold a slot.
func (l *Limiter) Release(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel, ok := l.cancelFns[runID]; ok {
		cancel()
		delete(l.cancelFns, runID)
	}
	leaseID, ok := l.leases[runID]
	if !ok {
		return nil
	}
	delete(l.leases, runID)

	if _, err := l.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("coordinator: revoking slot lease for %s: %w", runID, err)
	}
	return nil
}

// Acquire attempts to reserve a run slot for runID, returning ErrCapacityExceeded if
// maxConcurrent slots are already held. On success, a background goroutine renews the
// lease every ttl/3 seconds until Release or Close.
func (l *Limiter) Acquire(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, err := l.activeCountLocked(ctx)
	if err != nil {
		return err
	}
	if count >= l.maxSlots {
		return fmt.Errorf("coordinator: %w (%d/%d slots held)", ErrCapacityExceeded, count, l.maxSlots)
	}

	leaseResp, err := l.client.Grant(ctx, int64(l.ttl))
	if err != nil {
		return fmt.Errorf("coordinator: creating slot lease: %w", err)
	}

	key := l.slotKey(runID)
	if _, err := l.client.Put(ctx, key, runID, clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("coordinator: writing slot %s: %w", runID, err)
	}

	l.leases[runID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	l.cancelFns[runID] = cancel
	l.wg.Add(1)
	go l.keepalive(keepaliveCtx, leaseResp.ID, runID)

	return nil
}

func (l *Limiter) activeCountLocked(ctx context.Context) (int, error) {
	resp, err := l.client.Get(ctx, l.namespace+"/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, fmt.Errorf("coordinator: counting active slots: %w", err)
	}
	return int(resp.Count), nil
}

func (l *Limiter) keepalive(ctx context.Context, leaseID clientv3.LeaseID, runID string) {
	defer l.wg.Done()

	interval := time.Duration(l.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				l.mu.Lock()
				delete(l.leases, runID)
				delete(l.cancelFns, runID)
				l.mu.Unlock()
				return
			}
		}
	}
}

func (l *Limiter) slotKey(runID string) string {
	return l.namespace + "/" + runID
}

// Close releases the etcd client. Held slots are not released; call Release for each
// in-flight run first.
func (l *Limiter) Close() error {
	l.mu.Lock()
	for _, cancel := range l.cancelFns {
		cancel()
	}
	l.cancelFns = make(map[string]context.CancelFunc)
	l.mu.Unlock()

	l.wg.Wait()
	return l.client.Close()
}
