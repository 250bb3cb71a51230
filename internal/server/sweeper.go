// ABOUTME: Background sweeper deleting expired tokens and idle sessions
// ABOUTME: Runs on the configured interval until its context ends

package server

import (
	"context"
	"time"
)

func (s *Server) startSweeper(ctx context.Context) {
	interval := s.config.Auth.SweepInterval
	// config.SweepDisabled is negative.
	if interval <= 0 {
		s.logger.Debug("credential sweeper disabled")
		return
	}

	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// sweep runs one pass over tokens and sessions.
func (s *Server) sweep(ctx context.Context) {
	tokens, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		s.logger.Warn("token sweep failed", "error", err)
	}
	sessions, err := s.sessions.SweepIdle(ctx)
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
	}
	if tokens > 0 || sessions > 0 {
		s.logger.Info("swept stale credentials", "tokens", tokens, "sessions", sessions)
	}
}
