package scheduler

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	sd "github.com/coreos/go-systemd/v22/daemon"
)

// Daemon scans the queue on a fixed interval until the context is
// cancelled. Under systemd it reports readiness and liveness through the
// notify socket; elsewhere the notify calls are no-ops.
func (s *Scheduler) Daemon(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if err := s.RecoverStale(); err != nil {
		log.Warn("Could not recover stale posts", "err", err)
	}

	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready failed", "err", err)
	}

	log.Info("Scheduler daemon started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.RunOnce(ctx)
		if err != nil {
			log.Error("Schedule scan failed", "err", err)
		} else if n > 0 {
			log.Info("Processed due posts", "count", n)
		}

		if _, err := sd.SdNotify(false, "WATCHDOG=1"); err != nil {
			log.Debug("sd_notify watchdog failed", "err", err)
		}

		select {
		case <-ctx.Done():
			if _, err := sd.SdNotify(false, sd.SdNotifyStopping); err != nil {
				log.Debug("sd_notify stopping failed", "err", err)
			}
			log.Info("Scheduler daemon stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
