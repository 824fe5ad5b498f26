//go:build !linux

package capture

import "fmt"

// Open fails on non-Linux systems; NFQUEUE interception is
// Linux-only. The memory handle keeps the rest of the agent testable
// everywhere.
func Open(queueNum uint16) (Handle, error) {
	return nil, fmt.Errorf("nfqueue interception is only supported on linux")
}
