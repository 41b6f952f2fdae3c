// Package device defines the stable device-identity type shared by
// InputEngine and OutputRouter. Both components enumerate, select, and
// probe devices through this type; neither owns it.
package device

import "strings"

// Kind tags whether a Descriptor names a capture source or a routable
// virtual-output sink.
type Kind int

const (
	PhysicalInput Kind = iota
	VirtualOutput
)

func (k Kind) String() string {
	if k == VirtualOutput {
		return "virtual-output"
	}
	return "physical-input"
}

// Subkind further classifies a VirtualOutput Descriptor by the driver that
// installed it. Physical inputs leave this empty.
type Subkind string

const (
	SubkindVBCable    Subkind = "vb-cable"
	SubkindBlackHole  Subkind = "blackhole"
	SubkindOther      Subkind = "other"
)

// Descriptor is the opaque, stable identity of one host audio device plus
// its last-probed capabilities. ID is backend-defined and is not expected
// to be human-readable; Name is.
type Descriptor struct {
	ID   string
	Name string
	Kind Kind
	Sub  Subkind

	MaxChannels      int
	SupportedRates   []int
	SupportedBuffers []int

	// Connected reflects the result of the most recent enumeration probe,
	// not necessarily the live state at the instant a caller reads it.
	Connected bool
}

// virtualOutputNamePatterns is the allow-list OutputRouter filters the host
// device list by (spec.md §4.5, list_virtual_outputs).
var virtualOutputNamePatterns = []string{"VB-Audio", "CABLE Input", "VB-Cable", "BlackHole"}

// LooksLikeVirtualOutput reports whether name matches one of the known
// virtual-audio-driver naming conventions.
func LooksLikeVirtualOutput(name string) bool {
	for _, pat := range virtualOutputNamePatterns {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// SubkindFromName classifies a virtual-output device by its reported name.
func SubkindFromName(name string) Subkind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "blackhole"):
		return SubkindBlackHole
	case strings.Contains(lower, "vb-audio"), strings.Contains(lower, "cable input"), strings.Contains(lower, "vb-cable"):
		return SubkindVBCable
	default:
		return SubkindOther
	}
}
