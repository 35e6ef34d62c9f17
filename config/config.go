// Package config loads the ini-style configuration described in §6: the
// RefTree bootstrap anchor, the DFS block-cache sizing knobs, and the
// Ketch replication options. Loaded values are merged over built-in
// defaults rather than replacing them wholesale, so an operator's file
// only needs to mention what it overrides.
package config

import (
	"io"
	"time"

	"dario.cat/mergo"
	"github.com/go-git/gcfg"
)

// RefTreeConfig holds the reftree.* section.
type RefTreeConfig struct {
	// CommittedRef is the bootstrap reference anchoring the RefTree
	// commit (§3). Defaults to refs/txn/committed.
	CommittedRef string `gcfg:"committed-ref"`
}

// DFSConfig holds the core.dfs.* section governing the pack block cache.
type DFSConfig struct {
	// BlockLimit is the byte budget for the pack block cache.
	BlockLimit int64 `gcfg:"block-limit"`
	// BlockSize is the page size for paged pack reads; must be a power
	// of two >= 512.
	BlockSize int64 `gcfg:"block-size"`
	// StreamRatio is the fraction of the block cache a single pack may
	// consume during reuse, in [0,1].
	StreamRatio float64 `gcfg:"stream-ratio"`
}

// KetchConfig holds the ketch.* section.
type KetchConfig struct {
	// Type selects how a replica's commit state is pushed: "all-refs"
	// or "txn-committed".
	Type string `gcfg:"type"`
	// Commit selects push timing relative to accept: "fast" or
	// "batched".
	Commit string `gcfg:"commit"`
	// Speed is retained for sources that spell the commit-timing knob
	// this way instead. Load stores Commit and Speed exactly as read and
	// does not reconcile them.
	Speed string `gcfg:"speed"`
	// RetryMin and RetryMax bound a replica's exponential backoff.
	RetryMin time.Duration `gcfg:"retry-min"`
	RetryMax time.Duration `gcfg:"retry-max"`
}

// Config is the full set of options this module reads from an ini-style
// file, organized the way gcfg expects: one struct field per [section].
type Config struct {
	RefTree RefTreeConfig `gcfg:"reftree"`
	Core    struct {
		DFS DFSConfig `gcfg:"dfs"`
	} `gcfg:"core"`
	Ketch KetchConfig `gcfg:"ketch"`
}

// Default returns the built-in configuration every loaded file is
// merged over.
func Default() *Config {
	c := &Config{}
	c.RefTree.CommittedRef = "refs/txn/committed"
	c.Core.DFS.BlockLimit = 32 * 1024 * 1024
	c.Core.DFS.BlockSize = 4096
	c.Core.DFS.StreamRatio = 0.5
	c.Ketch.Type = "all-refs"
	c.Ketch.Commit = "fast"
	c.Ketch.RetryMin = 100 * time.Millisecond
	c.Ketch.RetryMax = 30 * time.Second
	return c
}

// Load reads an ini-style config from r and merges it over Default: any
// field left unset in r keeps its default value, and any field r does
// set overrides the default.
func Load(r io.Reader) (*Config, error) {
	// gcfg maps a [section "subsection"] header only onto a map-typed
	// field, so [core "dfs"] is read through a map and copied into
	// Core.DFS.
	var raw struct {
		RefTree RefTreeConfig         `gcfg:"reftree"`
		Core    map[string]*DFSConfig `gcfg:"core"`
		Ketch   KetchConfig           `gcfg:"ketch"`
	}
	if err := gcfg.FatalOnly(gcfg.ReadInto(&raw, r)); err != nil {
		return nil, err
	}
	loaded := &Config{RefTree: raw.RefTree, Ketch: raw.Ketch}
	if dfs := raw.Core["dfs"]; dfs != nil {
		loaded.Core.DFS = *dfs
	}

	merged := Default()
	if err := mergo.Merge(merged, loaded, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
