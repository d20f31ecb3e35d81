// Package leaderelection provides Postgres advisory lock-based leader
// election for the scanner.
//
// A single session-scoped advisory lock determines the leader. The lock is
// held for the lifetime of a dedicated database connection; there is no
// renewal or TTL. If the connection dies, Postgres releases the lock
// server-side (timing depends on TCP keepalive settings).
//
// The heartbeat ping exists solely to detect local connection death so the
// leader can stop scanning promptly. It does NOT renew the lock. Election
// is an optimization: the firing ledger's uniqueness constraint keeps
// firings single-shot even if two instances briefly both scan.
package leaderelection

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Elector manages leader election using a Postgres advisory lock.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt lock acquisition
	heartbeatInterval time.Duration // leader: how often to ping the dedicated connection
	onElected         func(ctx context.Context)
	onDemoted         func()
	logger            *zap.Logger
}

// New creates an Elector.
//
// onElected is called in a new goroutine when this instance acquires the
// lock; the provided context is cancelled when leadership is lost. It
// should start leader duties and return quickly.
//
// onDemoted is called synchronously when leadership is lost. It should stop
// leader duties, block until they are fully stopped, and be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
	logger *zap.Logger,
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
		logger:            logger,
	}
}

// Run starts the leader election loop. It blocks until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	e.logger.Info("leader: starting election loop",
		zap.Int64("lock_key", e.lockKey),
		zap.Duration("retry", e.retryInterval),
		zap.Duration("heartbeat", e.heartbeatInterval))

	for {
		if ctx.Err() != nil {
			e.logger.Info("leader: election loop stopped")
			return
		}

		reason := e.runOnce(ctx)

		if ctx.Err() != nil {
			e.logger.Info("leader: election loop stopped")
			return
		}

		if reason != "" {
			e.logger.Warn("leader: lost leadership",
				zap.String("reason", reason),
				zap.Duration("retry_in", e.retryInterval))
		}

		select {
		case <-ctx.Done():
			e.logger.Info("leader: election loop stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce attempts to acquire the advisory lock and hold it.
// Returns the reason leadership was lost ("" if the lock was not acquired).
func (e *Elector) runOnce(ctx context.Context) string {
	// Advisory lock is session-scoped: must use a dedicated connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.logger.Warn("leader: failed to acquire dedicated connection", zap.Error(err))
		return ""
	}
	defer conn.Close()

	// Non-blocking lock attempt.
	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired)
	if err != nil {
		e.logger.Warn("leader: advisory lock query failed", zap.Error(err))
		return ""
	}
	if !acquired {
		e.logger.Debug("leader: lock held by another instance", zap.Int64("lock_key", e.lockKey))
		return ""
	}

	e.logger.Info("leader: acquired advisory lock", zap.Int64("lock_key", e.lockKey))

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	// Ping detects local connection death; it does NOT renew the lock.
	reason := e.holdLock(ctx, conn)

	cancelLeader()
	e.onDemoted()

	e.logger.Info("leader: released advisory lock", zap.Int64("lock_key", e.lockKey))
	return reason
}

// holdLock blocks while pinging the dedicated connection.
// Returns the reason the lock was lost.
func (e *Elector) holdLock(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				e.logger.Warn("leader: dedicated connection ping failed", zap.Error(err))
				return "conn_lost"
			}
		}
	}
}
