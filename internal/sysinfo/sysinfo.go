// Package sysinfo collects the identity a publisher advertises in its beacon.
package sysinfo

import (
	"hash/crc32"
	"os"
	"runtime"
	"strings"

	"github.com/rs/xid"
	"github.com/shirou/gopsutil/v3/host"
)

// Identity describes the local machine.
type Identity struct {
	Hostname string
	// HostID is the platform machine id, empty if unavailable.
	HostID   string
	Platform string
	Kernel   string
}

// Collect gathers the local identity. Missing fields are left empty.
func Collect() Identity {
	var id Identity

	hostInfo, err := host.Info()
	if err == nil {
		id.Hostname = hostInfo.Hostname
		id.HostID = hostInfo.HostID
		id.Platform = hostInfo.Platform
		if hostInfo.PlatformVersion != "" {
			id.Platform += " " + hostInfo.PlatformVersion
		}
		id.Kernel = hostInfo.KernelVersion
	}

	if id.Hostname == "" {
		id.Hostname, _ = os.Hostname()
	}

	if runtime.GOOS == "linux" {
		if prettyName := readOSReleasePrettyName(); prettyName != "" {
			id.Platform = prettyName
		}
	}
	if id.Platform == "" {
		id.Platform = runtime.GOOS
	}

	return id
}

// InstanceID derives a 32-bit instance id from the machine id, so it is
// stable across restarts. Without a machine id a random one is generated.
func (i Identity) InstanceID() uint32 {
	if i.HostID != "" {
		return crc32.ChecksumIEEE([]byte(i.HostID))
	}
	return crc32.ChecksumIEEE(xid.New().Bytes())
}

// readOSReleasePrettyName parses /etc/os-release for the PRETTY_NAME field.
func readOSReleasePrettyName() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			val := strings.TrimPrefix(line, "PRETTY_NAME=")
			val = strings.Trim(val, "\"")
			return val
		}
	}
	return ""
}
