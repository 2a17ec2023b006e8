//go:build linux

package sensor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl from linux/i2c-dev.h.
const i2cSlave = 0x0703

// openI2C opens an i2c-dev node and binds it to addr.
func openI2C(dev string, addr int) (i2cBus, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c device: %w", err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		f.Close()
		return nil, fmt.Errorf("set i2c address %#x on %s: %w", addr, dev, err)
	}
	return f, nil
}
