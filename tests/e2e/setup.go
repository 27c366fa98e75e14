//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"capacity-core/internal/infra/db"
	"capacity-core/internal/infra/uow"
	"capacity-core/internal/pkg/clock"
	"capacity-core/internal/pkg/config"
	"capacity-core/internal/usecase"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	postgresContainerOnce sync.Once
	postgresTestContainer testcontainers.Container

	testUser     = "test"
	testPassword = "testpass"
)

type containerInfo struct {
	Host string
	Port nat.Port
}

type testEngine struct {
	pool        *pgxpool.Pool
	coordinator usecase.Coordinator
	sweeper     *usecase.Sweeper
	clock       *clock.MockClock
}

// setupEngine gives each test its own database on a shared Postgres
// container, with migrations applied and a coordinator wired over the
// real PostgresUoW.
func setupEngine(t *testing.T) *testEngine {
	t.Helper()

	info := startPostgres(t)
	pool := prepareDatabase(t, info)

	clk := clock.NewMockClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	unit := uow.NewPostgresUoW(pool, nil)
	coordinator := usecase.NewCoordinator(unit, clk, logger, nil, "BK")
	sweeper := usecase.NewSweeper(unit, coordinator, clk, logger, nil, time.Second, 100)

	return &testEngine{
		pool:        pool,
		coordinator: coordinator,
		sweeper:     sweeper,
		clock:       clk,
	}
}

func startPostgres(t *testing.T) containerInfo {
	t.Helper()

	startPostgresContainerOnce(t)

	host, err := postgresTestContainer.Host(context.Background())
	require.NoError(t, err, "failed to resolve container host")
	port, err := postgresTestContainer.MappedPort(context.Background(), "5432/tcp")
	require.NoError(t, err, "failed to resolve container port")

	return containerInfo{Host: host, Port: port}
}

func prepareDatabase(t *testing.T, info containerInfo) *pgxpool.Pool {
	t.Helper()

	// one database per test process keeps parallel packages isolated
	dbName := "testdb_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	adminDSN := fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable",
		testUser, testPassword, info.Host, info.Port.Port())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adminPool, err := pgxpool.New(ctx, adminDSN)
	require.NoError(t, err, "admin connection failed")
	defer adminPool.Close()

	var createErr error
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(500*attempt) * time.Millisecond)
		}
		_, createErr = adminPool.Exec(ctx, "CREATE DATABASE "+dbName)
		if createErr == nil {
			break
		}
	}
	require.NoError(t, createErr, "failed to create test database")

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()

		cleanupPool, err := pgxpool.New(cleanupCtx, adminDSN)
		if err != nil {
			return
		}
		defer cleanupPool.Close()
		_, _ = cleanupPool.Exec(cleanupCtx, "DROP DATABASE IF EXISTS "+dbName)
	})

	dbConfig := config.DBConfig{
		Host:     info.Host,
		Port:     info.Port.Port(),
		User:     testUser,
		Password: testPassword,
		DBName:   dbName,
		SSLMode:  "disable",
		MaxConns: 25,
	}

	pool, cleanup, err := db.Connect(ctx, dbConfig)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(cleanup)

	require.NoError(t, applyMigrations(ctx, pool), "migrations failed")

	return pool
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationFiles := []string{
		"migrations/0001_capacity_engine.sql",
	}

	for _, file := range migrationFiles {
		// resolve relative to the package dir `go test` runs in
		var (
			sqlContent []byte
			readErr    error
		)
		candidates := []string{
			file,
			filepath.Join("..", file),
			filepath.Join("..", "..", file),
			filepath.Join("..", "..", "..", file),
		}
		for _, cand := range candidates {
			sqlContent, readErr = os.ReadFile(cand)
			if readErr == nil {
				break
			}
		}
		if readErr != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, readErr)
		}

		if _, err := pool.Exec(ctx, string(sqlContent)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	return nil
}

func startPostgresContainerOnce(t *testing.T) {
	postgresContainerOnce.Do(func() {
		req := testcontainers.ContainerRequest{
			Image:        "postgres:17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     testUser,
				"POSTGRES_PASSWORD": testPassword,
				"POSTGRES_DB":       "postgres",
			},
			Tmpfs: map[string]string{
				"/var/lib/postgresql/data": "rw,size=512m",
			},
			Cmd: []string{
				"postgres",
				"-c", "fsync=off",
				"-c", "full_page_writes=off",
				"-c", "synchronous_commit=off",
				"-c", "max_connections=200",
				"-c", "log_statement=none",
			},
			WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
				return fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable",
					testUser, testPassword, host, port.Port())
			}).WithStartupTimeout(60 * time.Second),
			Labels: map[string]string{"purpose": "capacity-core-e2e"},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
		defer cancel()

		var err error
		postgresTestContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		require.NoError(t, err, "failed to start postgres container")

		t.Cleanup(func() {
			if postgresTestContainer != nil {
				termCtx, termCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer termCancel()
				_ = postgresTestContainer.Terminate(termCtx)
			}
		})
	})
}
