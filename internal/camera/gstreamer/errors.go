package gstreamer

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// Category groups pipeline errors for logging and counters.
type Category int

const (
	CategoryDevice Category = iota
	CategoryNegotiation
	CategoryPermission
	CategoryUnknown

	categoryCount
)

func (c Category) String() string {
	switch c {
	case CategoryDevice:
		return "device"
	case CategoryNegotiation:
		return "negotiation"
	case CategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

var (
	permissionKeywords  = []string{"permission denied", "not permitted", "access denied", "eacces"}
	negotiationKeywords = []string{"not negotiated", "negotiation", "caps", "format", "no supported", "could not map"}
	deviceKeywords      = []string{"cannot identify device", "no such file", "not found", "busy", "disconnected", "failed to open", "could not open", "device", "v4l2"}
)

// Classify maps a GStreamer error to a Category by keyword.
func Classify(gerr *gst.GError) Category {
	if gerr == nil {
		return CategoryUnknown
	}
	return classifyText(gerr.Error(), gerr.DebugString())
}

func classifyText(msg, debug string) Category {
	text := strings.ToLower(msg + " " + debug)
	switch {
	case containsAny(text, permissionKeywords):
		return CategoryPermission
	case containsAny(text, negotiationKeywords):
		return CategoryNegotiation
	case containsAny(text, deviceKeywords):
		return CategoryDevice
	}
	return CategoryUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
