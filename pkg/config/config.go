// Package config loads process configuration from the environment, with
// defaults matching the wire protocol and cluster timing constants.
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults per the wire protocol and cluster timing model.
const (
	DefaultListenAddr                = "0.0.0.0"
	DefaultListenPort                = 7111
	DefaultMulticastGroup             = "224.0.0.1"
	DefaultMulticastPort              = 54123
	DefaultMulticastInterval          = 10 * time.Second
	DefaultMulticastTTL               = 30 * time.Second
	DefaultMulticastTTLCheckInterval  = 10 * time.Second
	DefaultRaftTick                   = 1 * time.Second
	DefaultRaftElectionTick           = 10
	DefaultRaftHeartbeatTick          = 3
	DefaultMetricsAddr                = "127.0.0.1:9090"
)

// Config holds the runtime's tunables. Zero value is never valid; use Load.
type Config struct {
	ListenAddr string
	ListenPort int

	MulticastGroup            string
	MulticastPort             int
	MulticastInterval         time.Duration
	MulticastTTL              time.Duration
	MulticastTTLCheckInterval time.Duration

	RaftTick          time.Duration
	RaftElectionTick  int
	RaftHeartbeatTick int

	MetricsAddr string

	// LocalCmdMode toggles the self-exercising demo loop (LOCAL_CMD_MODE env).
	LocalCmdMode bool
}

// Load reads configuration from the environment, falling back to defaults
// for anything unset. It never fails: malformed values fall back silently
// (the equivalent of the original's fixed-default Config::new()).
func Load() *Config {
	cfg := &Config{
		ListenAddr:                DefaultListenAddr,
		ListenPort:                DefaultListenPort,
		MulticastGroup:            DefaultMulticastGroup,
		MulticastPort:             DefaultMulticastPort,
		MulticastInterval:         DefaultMulticastInterval,
		MulticastTTL:              DefaultMulticastTTL,
		MulticastTTLCheckInterval: DefaultMulticastTTLCheckInterval,
		RaftTick:                  DefaultRaftTick,
		RaftElectionTick:          DefaultRaftElectionTick,
		RaftHeartbeatTick:         DefaultRaftHeartbeatTick,
		MetricsAddr:               DefaultMetricsAddr,
	}

	if v := os.Getenv("PL_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = p
		}
	}
	if _, ok := os.LookupEnv("LOCAL_CMD_MODE"); ok {
		cfg.LocalCmdMode = true
	}

	return cfg
}
