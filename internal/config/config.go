// Package config loads pikavd's runtime configuration from a YAML file,
// environment variables, and command-line flags bound through viper,
// mirroring upstream's layered config::Config::builder() (one optional
// file, then environment).
package config

import "github.com/spf13/viper"

// Peer describes one configured cluster peer node.
type Peer struct {
	URL string `mapstructure:"url"`
}

// Config holds all runtime configuration for a pikavd serve invocation.
type Config struct {
	// Addr is the HTTP glue's listen address, e.g. ":8080".
	Addr string

	// ClusterAddr is this node's cluster RPC listen address, e.g. ":9090".
	ClusterAddr string

	// JWKSURL is the JWKS document used to verify bearer tokens.
	JWKSURL string

	// MetricsAuth is the bearer token required to read /metrics; empty
	// disables the gate.
	MetricsAuth string

	// Peers lists this node's cluster peers.
	Peers []Peer
}

// Load reads configuration from viper, which merges flag values, env vars,
// and an optional config file (wired up by the cobra command in
// cmd/pikavd).
func Load() Config {
	var peers []Peer
	raw := viper.Get("peers")
	if list, ok := raw.([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				peers = append(peers, Peer{URL: s})
			}
		}
	}

	return Config{
		Addr:        viper.GetString("addr"),
		ClusterAddr: viper.GetString("cluster_addr"),
		JWKSURL:     viper.GetString("jwks_url"),
		MetricsAuth: viper.GetString("metrics_auth"),
		Peers:       peers,
	}
}
