package netif

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	ifaces, err := List()
	if err != nil {
		t.Skipf("interface listing unavailable: %v", err)
	}
	require.NotEmpty(t, ifaces)

	for i := 1; i < len(ifaces); i++ {
		assert.Less(t, ifaces[i-1].Index, ifaces[i].Index, "interfaces must be ordered by index")
	}
	t.Logf("found %d interfaces", len(ifaces))
}

func TestAddressFamilies(t *testing.T) {
	iface := Interface{
		Index: 2,
		Name:  "eth0",
		Addrs: []netip.Prefix{netip.MustParsePrefix("192.168.1.10/24")},
	}
	assert.True(t, iface.HasIPv4())
	assert.False(t, iface.HasIPv6())

	iface.Addrs = append(iface.Addrs, netip.MustParsePrefix("fe80::1/64"))
	assert.True(t, iface.HasIPv6())
}

func TestFlagQueryFailureIsFalse(t *testing.T) {
	missing := Interface{Index: 1 << 30, Name: "does-not-exist"}
	assert.False(t, missing.IsMulticast())
	assert.False(t, missing.IsUp())
	assert.False(t, missing.Viable())
}

func TestSame(t *testing.T) {
	a := Interface{Index: 3, Name: "wlan0"}
	assert.True(t, a.Same(Interface{Index: 3, Name: "wlan0"}))
	assert.False(t, a.Same(Interface{Index: 3, Name: "wlan1"}))
}
