package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Tenant-scoped scoring knobs
// (weights, decay, thresholds) are NOT here: they are versioned data passed
// explicitly into each scoring call.
type Server struct {
	Addr            string
	Redis           RedisConfig
	PostgresURL     string
	KafkaBrokers    []string
	AuditTopic      string
	AuditPartitions int
	AuditQueueDepth int
	// JurisdictionTablePath points at a JSON file of {"CC": score} country
	// risk scores. Empty means every country is unlisted.
	JurisdictionTablePath string
	// RecalcWorkers bounds the recalculation fan-out pool.
	RecalcWorkers int
	// RecalcTimeout is the default ceiling for a tenant-wide recalculation.
	RecalcTimeout time.Duration
	// RateLimitPerWindow caps requests per tenant per window. Zero disables
	// rate limiting.
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
}

// RedisConfig captures connection settings for the score cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("RISKGRAPH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	workers := envInt("RISKGRAPH_RECALC_WORKERS", defaultWorkers())
	if workers < 1 {
		workers = 1
	}

	var brokers []string
	if raw := os.Getenv("RISKGRAPH_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	topic := os.Getenv("RISKGRAPH_AUDIT_TOPIC")
	if topic == "" {
		topic = "riskgraph.audit"
	}

	return Server{
		Addr: addr,
		Redis: RedisConfig{
			URL:          os.Getenv("RISKGRAPH_REDIS_URL"),
			PoolSize:     envInt("RISKGRAPH_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RISKGRAPH_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RISKGRAPH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RISKGRAPH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RISKGRAPH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		PostgresURL:           os.Getenv("RISKGRAPH_POSTGRES_URL"),
		KafkaBrokers:          brokers,
		AuditTopic:            topic,
		AuditPartitions:       envInt("RISKGRAPH_AUDIT_PARTITIONS", 3),
		AuditQueueDepth:       envInt("RISKGRAPH_AUDIT_QUEUE_DEPTH", 1024),
		JurisdictionTablePath: os.Getenv("RISKGRAPH_JURISDICTION_TABLE"),
		RecalcWorkers:         workers,
		RecalcTimeout:         envDuration("RISKGRAPH_RECALC_TIMEOUT", 5*time.Minute),
		RateLimitPerWindow:    envInt("RISKGRAPH_RATE_LIMIT", 600),
		RateLimitWindow:       envDuration("RISKGRAPH_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 16 {
		return 16
	}
	return n
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
