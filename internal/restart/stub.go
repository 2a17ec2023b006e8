//go:build !linux

package restart

import "errors"

// RealSystem is not available on non-Linux platforms.
type RealSystem struct{}

func (RealSystem) Sync() {}

func (RealSystem) Reboot() error {
	return errors.New("restart: reboot not supported on this platform (requires Linux)")
}

func (RealSystem) PowerOff() error {
	return errors.New("restart: power off not supported on this platform (requires Linux)")
}
