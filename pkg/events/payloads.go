package events

import "github.com/quietaudio/quiet/internal/device"

// DeviceListChangedPayload accompanies DeviceListChanged: the freshly
// enumerated device list for the direction that changed.
type DeviceListChangedPayload struct {
	Devices []device.Descriptor
}

// DeviceSelectedPayload accompanies DeviceSelected, published by both
// InputEngine.Select and OutputRouter.Select.
type DeviceSelectedPayload struct {
	Device device.Descriptor
}

// DeviceErrorPayload accompanies DeviceError: a human-readable message and
// the device id involved, if any (empty for enumeration-wide failures).
type DeviceErrorPayload struct {
	DeviceID string
	Message  string
}

// AudioLevelPayload accompanies AudioLevelInput/AudioLevelOutput: the
// smoothed 0..1 level spec.md §4.3 defines.
type AudioLevelPayload struct {
	Level float64
}

// RouterConnectionPayload accompanies RouterConnected/RouterDisconnected.
type RouterConnectionPayload struct {
	Device device.Descriptor
}

// FatalPayload accompanies Fatal: an unrecoverable subsystem failure, e.g.
// Denoiser.ModelInitFailed (spec.md §7).
type FatalPayload struct {
	Message string
}
