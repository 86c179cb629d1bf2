// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, event bus, and stores.
type Config struct {
	ServiceName        string
	Env                string
	HTTPAddr           string
	ShutdownTimeout    time.Duration
	BusQueueSize       int
	BusFanoutLimit     int
	BusHandlerTimeout  time.Duration
	WriteRetryDeadline time.Duration
	OTLPEndpoint       string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		ServiceName:        getenv("SERVICE_NAME", "commerce-shop"),
		Env:                getenv("ENV", "dev"),
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout:    durenvs("SHUTDOWN_TIMEOUT", 10),
		BusQueueSize:       atoienv("BUS_QUEUE_SIZE", 1024),
		BusFanoutLimit:     atoienv("BUS_FANOUT_LIMIT", 8),
		BusHandlerTimeout:  durenvs("BUS_HANDLER_TIMEOUT", 30),
		WriteRetryDeadline: durenvms("WRITE_RETRY_DEADLINE_MS", 500),
		OTLPEndpoint:       getenv("OTLP_ENDPOINT", ""),
	}
}
