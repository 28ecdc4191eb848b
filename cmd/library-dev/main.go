package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"schoollibrary/internal/app"
	"schoollibrary/migrations"
)

// Runs the application against a throwaway database container.
// DEV_BACKEND picks clickhouse (default), postgres, redis or mock.
func main() {
	ctx := context.Background()

	backend := strings.ToLower(os.Getenv("DEV_BACKEND"))
	if backend == "" {
		backend = "clickhouse"
	}

	var (
		container testcontainers.Container
		err       error
	)
	switch backend {
	case "clickhouse":
		container, err = startClickHouse(ctx)
	case "postgres":
		container, err = startPostgres(ctx)
	case "redis":
		container, err = startRedis(ctx)
	case "mock":
	default:
		log.Fatalf("Unknown DEV_BACKEND %q", backend)
	}
	if err != nil {
		log.Fatalf("Failed to start %s container: %v", backend, err)
	}

	// Ensure container cleanup on exit
	if container != nil {
		defer func() {
			log.Printf("Stopping %s container...", backend)
			if err := container.Terminate(ctx); err != nil {
				log.Printf("Failed to terminate container: %v", err)
			}
		}()
	}

	os.Setenv("STORAGE_BACKEND", backend)
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("WEBHOOK_MODE", "false")
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "debug")
	}

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set. Please set it in your .env file or environment.")
		log.Println("   The bot will fail to start without a valid token.")
	}
	if os.Getenv("ALLOWED_USER_IDS") == "" {
		log.Println("⚠️  ALLOWED_USER_IDS not set. Please set it in your .env file or environment.")
		log.Println("   The bot will not accept any commands without allowed user IDs.")
	}

	log.Printf("Starting application with %s backend...", backend)
	fmt.Println()

	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Run()
	}()

	select {
	case <-sigChan:
		log.Println("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Application error: %v", err)
		}
	}
}

func startClickHouse(ctx context.Context) (testcontainers.Container, error) {
	log.Println("Starting ClickHouse testcontainer...")
	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		return nil, err
	}

	host, err := c.Host(ctx)
	if err != nil {
		return c, err
	}
	port, err := c.MappedPort(ctx, "9000/tcp")
	if err != nil {
		return c, err
	}
	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")

	dsn := fmt.Sprintf("clickhouse://default:devpassword@%s:%s/default", host, port.Port())
	return c, migrate("clickhouse", "clickhouse", dsn)
}

func startPostgres(ctx context.Context) (testcontainers.Container, error) {
	log.Println("Starting PostgreSQL testcontainer...")
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("library"),
		postgres.WithUsername("library"),
		postgres.WithPassword("devpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return c, err
	}
	log.Printf("PostgreSQL started at %s", dsn)

	os.Setenv("POSTGRES_DSN", dsn)
	return c, migrate("postgres", "pgx", dsn)
}

func startRedis(ctx context.Context) (testcontainers.Container, error) {
	log.Println("Starting Redis testcontainer...")
	c, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, err
	}

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		return c, err
	}
	log.Printf("Redis started at %s", uri)

	os.Setenv("REDIS_ADDR", strings.TrimPrefix(uri, "redis://"))
	return c, nil
}

// migrate applies the embedded migrations of backend
func migrate(backend, driver, dsn string) error {
	dialect, dir, _ := migrations.Dialect(backend)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, dir)
}
