package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5433", User: "app", Password: "secret", DBName: "hackathons", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=hackathons sslmode=require", cfg.DSN())

	cfg.URL = "postgres://app:secret@db:5433/hackathons"
	assert.Equal(t, cfg.URL, cfg.DSN())
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), Config{URL: "postgres://%zz"}, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse db config")
}

func TestNewPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPool(ctx, Config{Host: "127.0.0.1", Port: "1", User: "x", DBName: "x", SSLMode: "disable"}, logger.Discard())
	assert.Error(t, err)
}
