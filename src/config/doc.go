// Package config defines the configuration of a Weave node: data directory
// layout, store backend selection, worker pool sizing, retry policy, and the
// construction of the shared logger.
package config
