package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teambeacon/orgdex/pkg/types"
)

const (
	// acquirePollInterval is how long Acquire sleeps between attempts once
	// the pool is saturated.
	acquirePollInterval = 50 * time.Millisecond

	// probeTimeout bounds the liveness probe run on reused connections.
	probeTimeout = time.Second
)

// Pool hands out dedicated connections on top of database/sql. The standard
// pool multiplexes statements over shared connections; transactions here
// want a connection pinned for their whole scope, with a bounded total and
// a typed failure when none frees up in time.
//
// Callers must release every connection they acquire. Store.withConn wraps
// the acquire/release pair so call sites cannot leak.
type Pool struct {
	db      *sql.DB
	size    int
	maxOpen int
	timeout time.Duration

	mu     sync.Mutex
	free   []*sql.Conn
	total  int
	closed bool

	created atomic.Int64
	reused  atomic.Int64
}

// NewPool wraps db. size is the number of parked connections kept warm;
// up to 2x size may be open at once before Acquire starts polling.
func NewPool(db *sql.DB, size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pool{
		db:      db,
		size:    size,
		maxOpen: 2 * size,
		timeout: timeout,
	}
}

// Acquire returns a dedicated connection: a parked one that still answers a
// probe, or a freshly opened one while under the cap. Once saturated it
// polls until the pool timeout, then fails with ErrDatabaseUnavailable.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	deadline := time.Now().Add(p.timeout)
	for {
		conn, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no connection after %s: %w", p.timeout, types.ErrDatabaseUnavailable)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// tryAcquire returns (nil, nil) when the pool is saturated and the caller
// should poll.
func (p *Pool) tryAcquire(ctx context.Context) (*sql.Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed: %w", types.ErrDatabaseUnavailable)
		}
		var conn *sql.Conn
		if n := len(p.free); n > 0 {
			conn = p.free[n-1]
			p.free = p.free[:n-1]
		}
		p.mu.Unlock()

		if conn == nil {
			break
		}
		if p.alive(ctx, conn) {
			p.reused.Add(1)
			return conn, nil
		}
		p.discard(conn)
	}

	p.mu.Lock()
	if p.total >= p.maxOpen {
		p.mu.Unlock()
		return nil, nil
	}
	p.total++
	p.mu.Unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	p.created.Add(1)
	return conn, nil
}

// Release returns a connection to the pool. Dead connections and overflow
// beyond the park capacity are closed instead.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	if !p.alive(context.Background(), conn) {
		p.discard(conn)
		return
	}

	p.mu.Lock()
	if !p.closed && len(p.free) < p.size {
		p.free = append(p.free, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.discard(conn)
}

// alive runs the liveness probe.
func (p *Pool) alive(ctx context.Context, conn *sql.Conn) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var one int
	return conn.QueryRowContext(probeCtx, "SELECT 1").Scan(&one) == nil
}

func (p *Pool) discard(conn *sql.Conn) {
	_ = conn.Close()
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// Close closes every parked connection and refuses further acquires.
// Connections still out with callers are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	free := p.free
	p.free = nil
	p.total -= len(free)
	p.mu.Unlock()

	for _, conn := range free {
		_ = conn.Close()
	}
	return nil
}

// Created returns the number of connections opened over the pool's life.
func (p *Pool) Created() int64 { return p.created.Load() }

// Reused returns how many acquires were satisfied by a parked connection.
func (p *Pool) Reused() int64 { return p.reused.Load() }
