// Package env resolves the identity of the machine running a split half.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID keys the hashed machine id so the raw id never leaves the host.
const AppID = "split.go"

// MachineID returns a stable id for this machine, falling back to the
// hostname when the platform id is unavailable.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
