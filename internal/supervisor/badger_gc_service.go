// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/ucserver/internal/logging"
)

// BadgerGCService periodically runs value-log garbage collection on the
// credential store. Badger never reclaims value-log space on its own;
// without this loop a long-lived box slowly leaks disk.
type BadgerGCService struct {
	db       *badger.DB
	interval time.Duration
}

// NewBadgerGCService creates the GC loop. A zero interval defaults to
// ten minutes.
func NewBadgerGCService(db *badger.DB, interval time.Duration) *BadgerGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &BadgerGCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			switch {
			case err == nil:
				logging.Debug().Msg("Credential store value log compacted")
			case errors.Is(err, badger.ErrNoRewrite):
				// Nothing to reclaim.
			default:
				logging.Warn().Err(err).Msg("Credential store GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *BadgerGCService) String() string {
	return "badger-gc"
}
