package pool

import (
	"context"
	"time"

	"github.com/rs/xid"
)

// Connection is a pooled wrapper around one physical connection. It is
// owned exclusively by the pool until checked out; during use ownership
// belongs to the acquiring unit of work, and returns on Release.
type Connection struct {
	id       string
	conn     Conn
	createdAt time.Time
	lastUsed  time.Time
	overflow  bool
	dead      bool
}

func newConnection(conn Conn, overflow bool) *Connection {
	now := time.Now()
	return &Connection{
		id:        xid.New().String(),
		conn:      conn,
		createdAt: now,
		lastUsed:  now,
		overflow:  overflow,
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Age() time.Duration {
	return time.Since(c.createdAt)
}

// IsOverflow reports whether this connection was opened beyond the base
// pool capacity.
func (c *Connection) IsOverflow() bool {
	return c.overflow
}

// MarkDead flags the connection for disposal on release instead of reuse.
func (c *Connection) MarkDead() {
	c.dead = true
}

func (c *Connection) IsDead() bool {
	return c.dead
}

func (c *Connection) expired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(c.createdAt) > maxLifetime
}

func (c *Connection) touch() {
	c.lastUsed = time.Now()
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	c.touch()
	return c.conn.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	c.touch()
	return c.conn.Query(ctx, sql, args...)
}

func (c *Connection) Begin(ctx context.Context) (Tx, error) {
	c.touch()
	return c.conn.Begin(ctx)
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Connection) close(ctx context.Context) {
	_ = c.conn.Close(ctx)
}
