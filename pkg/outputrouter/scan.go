package outputrouter

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/quietaudio/quiet/internal/device"
	"github.com/quietaudio/quiet/pkg/events"
)

// scanLoop is the hot-plug thread (spec.md §5, §4.5): it re-enumerates
// virtual outputs every hotPlugInterval and drives the Scanning ->
// Selected, Routing -> Reconnecting and Idle -> Scanning transitions of
// the state diagram.
func (r *Router) scanLoop(ctx context.Context) {
	r.scanOnce(ctx)
	ticker := time.NewTicker(hotPlugInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *Router) scanOnce(ctx context.Context) {
	devices, err := r.ListVirtualOutputs(ctx)
	if err != nil {
		logger.Debugf(ctx, "outputrouter: scan failed: %v", err)
		return
	}

	current := map[string]device.Descriptor{}
	for _, d := range devices {
		current[d.ID] = d
	}

	r.mu.Lock()
	state := r.state
	var selectedID string
	if r.selected != nil {
		selectedID = r.selected.ID
	}
	previouslyEmpty := len(r.knownDevices) == 0
	r.knownDevices = current
	r.mu.Unlock()

	switch state {
	case Scanning:
		if len(devices) > 0 {
			if previouslyEmpty && r.bus != nil {
				r.bus.Publish(events.DeviceListChanged, events.DeviceListChangedPayload{Devices: devices})
			}
			if err := r.selectAndOpen(ctx, devices[0]); err != nil {
				logger.Debugf(ctx, "outputrouter: auto-select %q failed: %v", devices[0].ID, err)
			}
		}
	case Idle, Routing:
		if selectedID == "" {
			return
		}
		if _, ok := current[selectedID]; !ok {
			r.mu.Lock()
			wasRouting := r.state == Routing
			r.mu.Unlock()
			if wasRouting {
				r.beginReconnect(ctx)
			} else {
				// Idle (opened but not yet routing): fall straight back to
				// Scanning rather than spinning up a reconnect goroutine
				// that has nothing to reconnect for the audio thread yet.
				r.mu.Lock()
				dev := r.selected
				_ = r.closeStreamLocked()
				r.selected = nil
				r.state = Scanning
				r.mu.Unlock()
				if r.bus != nil && dev != nil {
					r.bus.Publish(events.RouterDisconnected, events.RouterConnectionPayload{Device: *dev})
				}
			}
		}
	}
}
