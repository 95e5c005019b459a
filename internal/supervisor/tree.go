// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package supervisor runs the server's long-lived services under a
// suture supervision tree: the HTTP listener and the credential store's
// garbage collector. A crash in either is restarted with backoff instead
// of taking the process down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait when the threshold is
	// exceeded.
	FailureBackoff time.Duration
}

// DefaultTreeConfig returns suture's production defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
	}
}

// Tree is the root supervisor.
type Tree struct {
	root *suture.Supervisor
}

// NewTree creates the supervision tree, logging suture events through
// the given slog logger.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}

	root := suture.New("ucserver", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
	})

	return &Tree{root: root}
}

// Add registers a service with the root supervisor.
func (t *Tree) Add(svc suture.Service) {
	t.root.Add(svc)
}

// Serve runs the tree until the context is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
