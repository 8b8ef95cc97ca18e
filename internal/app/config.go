package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConsensusType selects the consensus implementation used by the node.
type ConsensusType string

// Supported consensus engine types.
const (
	ConsensusTypeRaft ConsensusType = "raft"
)

// Config contains runtime settings for a node process.
type Config struct {
	NodeID        string
	ConsensusType ConsensusType
	LogLevel      string

	// GRPCAddr serves both the client-facing table API and the
	// node-to-node consensus RPCs.
	GRPCAddr    string
	MetricsAddr string
	PprofAddr   string
	DataDir     string

	PeerAddrs []string

	// HeartbeatInterval is the leader replication tick.
	HeartbeatInterval time.Duration
	// LeaseDuration is the leader lease granted by each successful
	// AppendEntries exchange.
	LeaseDuration time.Duration
	// LeaderStateStaleness bounds how old a cached leader-readiness
	// snapshot served to stale-tolerant callers may be.
	LeaderStateStaleness time.Duration

	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
}

// DefaultConfig returns a local-development configuration.
func DefaultConfig() Config {
	return Config{
		NodeID:             "node-1",
		ConsensusType:      ConsensusTypeRaft,
		LogLevel:           "info",
		GRPCAddr:           ":8080",
		DataDir:            "./var/node-1",
		TracingServiceName: "tablet-node",
	}
}

// LoadConfigFromEnv loads config from environment variables.
//
// Supported vars:
// - APP_NODE_ID
// - APP_CONSENSUS_TYPE (must be "raft")
// - APP_LOG_LEVEL (debug|info|warn|error)
// - APP_GRPC_ADDR
// - APP_METRICS_ADDR (empty disables the /metrics endpoint)
// - APP_PPROF_ADDR (empty disables pprof)
// - APP_DATA_DIR
// - APP_PEERS (comma-separated "peer-id=host:port" entries)
// - APP_HEARTBEAT_INTERVAL (duration, e.g. 50ms)
// - APP_LEASE_DURATION (duration, e.g. 2s)
// - APP_LEADER_STATE_STALENESS (duration, e.g. 50ms)
// - APP_TRACING_ENABLED (true|false)
// - APP_TRACING_ENDPOINT (OTLP gRPC host:port)
// - APP_TRACING_SERVICE_NAME
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("APP_NODE_ID")); v != "" {
		cfg.NodeID = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_CONSENSUS_TYPE")); v != "" {
		cfg.ConsensusType = ConsensusType(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_GRPC_ADDR")); v != "" {
		cfg.GRPCAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_PPROF_ADDR")); v != "" {
		cfg.PprofAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_PEERS")); v != "" {
		cfg.PeerAddrs = splitCSV(v)
	}
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"APP_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"APP_LEASE_DURATION", &cfg.LeaseDuration},
		{"APP_LEADER_STATE_STALENESS", &cfg.LeaderStateStaleness},
	} {
		v := strings.TrimSpace(os.Getenv(d.env))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid %s %q: %w", d.env, v, err)
		}
		*d.dst = parsed
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_TRACING_ENABLED %q: %w", v, err)
		}
		cfg.TracingEnabled = enabled
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_ENDPOINT")); v != "" {
		cfg.TracingEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_SERVICE_NAME")); v != "" {
		cfg.TracingServiceName = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and supported.
func (c Config) Validate() error {
	if strings.TrimSpace(c.NodeID) == "" {
		return fmt.Errorf("app: node id is required")
	}
	switch c.ConsensusType {
	case ConsensusTypeRaft:
	default:
		return fmt.Errorf("app: unsupported consensus type %q", c.ConsensusType)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app: unsupported log level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		return fmt.Errorf("app: grpc addr is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("app: data dir is required")
	}
	if c.HeartbeatInterval < 0 || c.LeaseDuration < 0 || c.LeaderStateStaleness < 0 {
		return fmt.Errorf("app: durations must not be negative")
	}
	if c.LeaseDuration > 0 && c.HeartbeatInterval > 0 && c.LeaseDuration <= c.HeartbeatInterval {
		return fmt.Errorf("app: lease duration %s must exceed heartbeat interval %s",
			c.LeaseDuration, c.HeartbeatInterval)
	}
	if c.TracingEnabled && strings.TrimSpace(c.TracingEndpoint) == "" {
		return fmt.Errorf("app: tracing endpoint is required when tracing is enabled")
	}
	return nil
}

// PeerAddrMap parses PeerAddrs into a map of peer-id -> address.
// Each entry is either "host:port" (peer ID equals address) or "peer-id=host:port".
func (c Config) PeerAddrMap() (map[string]string, error) {
	out := make(map[string]string, len(c.PeerAddrs))
	for _, raw := range c.PeerAddrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		id := raw
		addr := raw
		if left, right, ok := strings.Cut(raw, "="); ok {
			id = strings.TrimSpace(left)
			addr = strings.TrimSpace(right)
		}

		if id == "" || addr == "" {
			return nil, fmt.Errorf("app: invalid peer entry %q", raw)
		}
		if _, exists := out[id]; exists {
			return nil, fmt.Errorf("app: duplicate peer id %q", id)
		}
		out[id] = addr
	}
	return out, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
