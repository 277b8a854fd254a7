package testutils

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// IntegrationEnabled reports whether container-backed specs should run.
func IntegrationEnabled() bool {
	return os.Getenv("SENSEI_INTEGRATION") == "1"
}

// Container is a started throwaway container and the address clients use
// to reach it.
type Container struct {
	testcontainers.Container

	// Addr is host:port of the first exposed port.
	Addr string
}

// Terminate stops and removes the container.
func (c *Container) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

func start(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port) (*Container, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container port: %w", err)
	}

	return &Container{Container: c, Addr: fmt.Sprintf("%s:%s", host, mapped.Port())}, nil
}

// StartPostgres starts a disposable postgres and returns it with a DSN.
func StartPostgres(ctx context.Context) (*Container, string, error) {
	c, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sensei",
			"POSTGRES_PASSWORD": "sensei",
			"POSTGRES_DB":       "sensei",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("postgres://sensei:sensei@%s/sensei?sslmode=disable", c.Addr), nil
}

// StartRedis starts a disposable redis.
func StartRedis(ctx context.Context) (*Container, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
}

// StartQdrant starts a disposable qdrant and returns its gRPC address.
func StartQdrant(ctx context.Context) (*Container, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.13.0",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
	}, "6334/tcp")
}
