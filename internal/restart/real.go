//go:build linux

package restart

import "golang.org/x/sys/unix"

// RealSystem reboots or powers off the host.
type RealSystem struct{}

func (RealSystem) Sync() { unix.Sync() }

func (RealSystem) Reboot() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}

func (RealSystem) PowerOff() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
}
