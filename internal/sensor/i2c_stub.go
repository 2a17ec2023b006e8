//go:build !linux

package sensor

import "errors"

// openI2C is not available on non-Linux platforms.
func openI2C(dev string, addr int) (i2cBus, error) {
	return nil, errors.New("i2c: not supported on this platform (requires Linux)")
}
