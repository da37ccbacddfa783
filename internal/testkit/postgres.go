//go:build integration

// Package testkit boots a throwaway Postgres for integration tests.
package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iota-uz/registrar/migrations"
	"github.com/iota-uz/registrar/pkg/composables"
)

// Env is a migrated database plus a context that carries its pool.
type Env struct {
	Ctx  context.Context
	Pool *pgxpool.Pool
	DSN  string
}

// NewPostgres uses REGISTRAR_TEST_DSN when set, otherwise starts a container.
// Tables are truncated between tests sharing a DSN.
func NewPostgres(t *testing.T) *Env {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	dsn := os.Getenv("REGISTRAR_TEST_DSN")
	if dsn == "" {
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("registrar"),
			postgres.WithUsername("registrar"),
			postgres.WithPassword("registrar"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("connection string: %v", err)
		}
	}

	db, err := migrations.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE jobs, blocked_jobs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return &Env{Ctx: composables.WithPool(ctx, pool), Pool: pool, DSN: dsn}
}
