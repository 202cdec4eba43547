package relay

import "github.com/fleetchat/fleetd/internal/buildinfo"

// DeviceInfo identifies this instance to subscribers. It is published
// retained on every connect.
type DeviceInfo struct {
	InstanceID string            `json:"instance_id"`
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	GitCommit  string            `json:"git_commit"`
	Build      buildinfo.Details `json:"build"`
}

// NewDeviceInfo builds the info payload from the persistent instance
// ID and the configured device name.
func NewDeviceInfo(instanceID, deviceName string) DeviceInfo {
	b := buildinfo.Current()
	return DeviceInfo{
		InstanceID: instanceID,
		Name:       deviceName,
		Version:    b.Version,
		GitCommit:  b.GitCommit,
		Build:      b,
	}
}
