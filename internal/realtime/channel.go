package realtime

import "fmt"

// Channel selects which message types a session receives. The channel is
// fixed when the connection is accepted; it never changes afterwards.
type Channel string

const (
	ChannelAll       Channel = "all"
	ChannelDashboard Channel = "dashboard"
	ChannelAlerts    Channel = "alerts"
)

// ParseChannel validates a channel name from a route or frame.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelAll, ChannelDashboard, ChannelAlerts:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// shouldReceive is the delivery predicate applied on every broadcast. It is
// total over the message type enumeration: every type has an explicit row
// for every channel, so a new type cannot be silently admitted or dropped.
func shouldReceive(ch Channel, t MessageType) bool {
	switch ch {
	case ChannelAll:
		return t.Valid()
	case ChannelDashboard:
		switch t {
		case TypeStats, TypeTransaction, TypeRevenueUpdate, TypeEntry, TypePing:
			return true
		case TypeAlert, TypeUserActivity, TypeInventoryUpdate, TypeSecurityAlert,
			TypePong, TypeSubscribe, TypeUnsubscribe, TypeError:
			return false
		}
	case ChannelAlerts:
		switch t {
		case TypeAlert, TypePing:
			return true
		case TypeStats, TypeTransaction, TypeRevenueUpdate, TypeEntry,
			TypeUserActivity, TypeInventoryUpdate, TypeSecurityAlert,
			TypePong, TypeSubscribe, TypeUnsubscribe, TypeError:
			return false
		}
	}
	return false
}
