package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/lattice-run/eventsourcing"
)

// WithCommandLogging wraps a CommandHandlerFunc with before/after/error log
// lines. The embedding host opts into this; the core engine does not
// require it.
func WithCommandLogging(logger *logrus.Entry, next eventsourcing.CommandHandlerFunc) eventsourcing.CommandHandlerFunc {
	return func(ctx context.Context, cmd eventsourcing.Command, store *eventsourcing.EventStore) (eventsourcing.Values, error) {
		logger.Infof("dispatch: %s (id: %s, issued_by: %s)", cmd.CommandType, cmd.ID, cmd.IssuedBy)

		result, err := next(ctx, cmd, store)
		if err != nil {
			logger.Errorf("dispatch failed: %s (id: %s): %v", cmd.CommandType, cmd.ID, err)
		} else {
			logger.Infof("dispatch ok: %s (id: %s)", cmd.CommandType, cmd.ID)
		}

		return result, err
	}
}
