// Package jobs runs periodic maintenance against the service.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// InvitationExpirer moves stale PENDING invitations to EXPIRED and reports
// how many moved.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context) (int, error)
}

// StartInvitationExpiryJob sweeps expired invitations every interval until
// ctx is cancelled. The returned channel closes once the loop has exited.
func StartInvitationExpiryJob(ctx context.Context, interval, timeout time.Duration, expirer InvitationExpirer, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if expirer == nil {
		close(done)
		return done
	}
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepInvitations(ctx, timeout, expirer, log)
			}
		}
	}()
	return done
}

func sweepInvitations(ctx context.Context, timeout time.Duration, expirer InvitationExpirer, log *zap.Logger) {
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	count, err := expirer.ExpireInvitations(tickCtx)
	if err != nil {
		log.Warn("invitation expiry job failed", zap.Error(err))
		return
	}
	if count > 0 {
		log.Info("invitation expiry job expired invitations", zap.Int("count", count))
	}
}
