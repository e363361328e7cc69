package stim

import "github.com/hfi-neuro/wss-core/internal/wss"

// BroadcastGroup is the group value commands use when no specific unit is
// addressed.
const BroadcastGroup = 0

// TargetForGroup maps a device-group selector to a wss.Target. Groups 1-3
// address a specific unit; BroadcastGroup and any other value resolve to
// Broadcast. The resolver never fails.
func TargetForGroup(group int) wss.Target {
	switch group {
	case 1:
		return wss.Wss1
	case 2:
		return wss.Wss2
	case 3:
		return wss.Wss3
	default:
		return wss.Broadcast
	}
}
