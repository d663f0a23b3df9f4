// Package systemd integrates with the service manager's readiness
// protocol. All calls are no-ops outside a systemd unit.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/pdfnode/internal/logging"
)

// NotifyReady tells systemd the service is up and serving.
func NotifyReady(logger logging.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("sd_notify READY failed", "error", err)
		return
	}
	if sent {
		logger.Debug("Notified systemd: ready")
	}
}

// NotifyStopping tells systemd shutdown has begun, extending the stop
// timeout accounting.
func NotifyStopping(logger logging.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("sd_notify STOPPING failed", "error", err)
		return
	}
	if sent {
		logger.Debug("Notified systemd: stopping")
	}
}
