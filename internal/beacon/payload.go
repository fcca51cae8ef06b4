// Package beacon defines the host advertisement beacon and a publisher used
// to exercise the client on a LAN without a real field host.
package beacon

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxSize is the largest beacon payload accepted.
const MaxSize = 1024

// ErrTooLarge is returned for beacons exceeding MaxSize.
var ErrTooLarge = errors.New("beacon exceeds maximum size")

// HostAdvertisement is the payload multicast by every field host.
type HostAdvertisement struct {
	Hostname   *string `msgpack:"hostname,omitempty"`
	InstanceID *uint32 `msgpack:"instance_id,omitempty"`
	// ControlPort is the WebSocket control channel port, 0 if not offered.
	ControlPort uint16 `msgpack:"control_port"`
	// StreamGroup overrides the default source-specific telemetry group.
	StreamGroup string `msgpack:"stream_group,omitempty"`
}

// Name returns the hostname or an empty string.
func (a HostAdvertisement) Name() string {
	if a.Hostname == nil {
		return ""
	}
	return *a.Hostname
}

// Encode marshals an advertisement.
func Encode(adv HostAdvertisement) ([]byte, error) {
	data, err := msgpack.Marshal(&adv)
	if err != nil {
		return nil, fmt.Errorf("marshaling advertisement: %w", err)
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Decode unmarshals an advertisement.
func Decode(data []byte) (HostAdvertisement, error) {
	if len(data) > MaxSize {
		return HostAdvertisement{}, ErrTooLarge
	}
	var adv HostAdvertisement
	if err := msgpack.Unmarshal(data, &adv); err != nil {
		return HostAdvertisement{}, fmt.Errorf("unmarshaling advertisement: %w", err)
	}
	return adv, nil
}
