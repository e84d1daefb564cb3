// Package sweep runs the periodic archive sweep.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/inkwell/internal/pipeline"
)

// Start periodically seals used ideas whose derived content is all posted
// or waived. It blocks until the context is cancelled.
func Start(ctx context.Context, svc *pipeline.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.SweepArchive(ctx); err != nil {
				log.Debug().Err(err).Msg("archive sweep failed")
			}
		}
	}
}
