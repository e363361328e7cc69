package stim

import (
	"strconv"
	"strings"
)

// UnassignedChannel is the sentinel returned for locators that resolve to no
// valid channel. The device rejects it through its own range checks.
const UnassignedChannel = 0

// ChannelForLocator maps a human-readable locator to a device channel index.
// Resolution is case-insensitive: a "ch<N>" alias resolves to N for any
// non-negative integer (malformed digits resolve to UnassignedChannel), and
// the five named finger locations resolve to channels 1-5. Anything else
// resolves to UnassignedChannel. The resolver never fails.
func ChannelForLocator(locator string) int {
	if locator == "" {
		return UnassignedChannel
	}

	lower := strings.ToLower(locator)
	if strings.HasPrefix(lower, "ch") {
		n, err := strconv.Atoi(lower[2:])
		if err != nil || n < 0 {
			return UnassignedChannel
		}
		return n
	}

	switch lower {
	case "thumb":
		return 1
	case "index":
		return 2
	case "middle":
		return 3
	case "ring":
		return 4
	case "pinky", "little":
		return 5
	default:
		return UnassignedChannel
	}
}
