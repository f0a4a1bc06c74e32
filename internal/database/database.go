package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	maxOpenConns = 25
	maxIdleConns = 5
)

// Settings holds the BLUEPRINT_DB_* connection parts.
type Settings struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

func (s Settings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		s.Username, s.Password, s.Host, s.Port, s.Database, s.Schema,
	)
}

// NewPostgres opens a pgx-backed pool and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Health pings the pool and reports its usage for /health.
func Health(ctx context.Context, db *sql.DB) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return poolReport(db.Stats())
}

// poolReport flags a pool whose connections are mostly checked out, since
// settlements then queue behind the row-locking transactions.
func poolReport(st sql.DBStats) map[string]string {
	report := map[string]string{
		"status":           "up",
		"pool":             "ok",
		"open_connections": strconv.Itoa(st.OpenConnections),
		"max_open":         strconv.Itoa(st.MaxOpenConnections),
		"in_use":           strconv.Itoa(st.InUse),
		"idle":             strconv.Itoa(st.Idle),
		"wait_count":       strconv.FormatInt(st.WaitCount, 10),
		"wait_duration":    st.WaitDuration.String(),
	}
	switch limit := st.MaxOpenConnections; {
	case limit > 0 && st.InUse >= limit:
		report["pool"] = "exhausted"
	case limit > 0 && st.InUse*5 >= limit*4:
		report["pool"] = "busy"
	case st.WaitCount > 0:
		report["pool"] = "waited"
	}
	return report
}
