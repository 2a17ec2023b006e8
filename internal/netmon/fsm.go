// Package netmon runs the network health worker. It watches the
// configured interface, pings the default gateway and reports NetState
// transitions to the coordinator.
package netmon

import "github.com/sweeney/co2mon/internal/message"

// Event drives the network state machine.
type Event int

const (
	NetUp Event = iota
	NetDown
	NetDevicePresent
	NetDeviceMissing
	NetDeviceFail
	NoNetDevices
	Timeout
)

var eventNames = [...]string{
	NetUp:            "NetUp",
	NetDown:          "NetDown",
	NetDevicePresent: "NetDevicePresent",
	NetDeviceMissing: "NetDeviceMissing",
	NetDeviceFail:    "NetDeviceFail",
	NoNetDevices:     "NoNetDevices",
	Timeout:          "Timeout",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[e]
}

// Next returns the network state reached from s on e. FAILED and
// NO_NET_INTERFACE absorb every event.
func Next(s message.NetStatus, e Event) message.NetStatus {
	switch s {
	case message.NetStart:
		switch e {
		case NetUp:
			return message.NetUp
		case NetDown, NetDevicePresent:
			return message.NetDown
		case NetDeviceMissing:
			return message.NetMissing
		case NetDeviceFail:
			return message.NetFailed
		case NoNetDevices:
			return message.NetNoInterface
		}
	case message.NetUp:
		switch e {
		case NetDown:
			return message.NetDown
		case NetDeviceMissing:
			return message.NetMissing
		case NetDeviceFail:
			return message.NetFailed
		}
	case message.NetDown:
		switch e {
		case NetUp:
			return message.NetUp
		case NetDeviceMissing:
			return message.NetMissing
		case NetDeviceFail, Timeout:
			return message.NetFailed
		}
	case message.NetMissing:
		switch e {
		case NetDevicePresent:
			return message.NetDown
		case NetUp:
			return message.NetUp
		case NetDeviceFail, Timeout:
			return message.NetFailed
		}
	}
	return s
}

// Terminal reports whether the worker cannot recover from s.
func Terminal(s message.NetStatus) bool {
	return s == message.NetFailed || s == message.NetNoInterface
}
