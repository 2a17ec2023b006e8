package netmon

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoRoute means the routing table has no default gateway.
var ErrNoRoute = errors.New("no default route")

// LinkChecker inspects local network devices.
type LinkChecker interface {
	// Interfaces lists the non-loopback devices.
	Interfaces() ([]string, error)
	// DeviceUp reports the device's operational state. A missing device
	// returns an error wrapping fs.ErrNotExist.
	DeviceUp(dev string) (bool, error)
	// Gateway returns the default IPv4 gateway.
	Gateway() (string, error)
}

// SysLink reads sysfs and procfs.
type SysLink struct {
	NetDir    string // /sys/class/net
	RouteFile string // /proc/net/route
}

// NewSysLink returns a checker for the standard kernel paths.
func NewSysLink() SysLink {
	return SysLink{NetDir: "/sys/class/net", RouteFile: "/proc/net/route"}
}

func (l SysLink) Interfaces() ([]string, error) {
	entries, err := os.ReadDir(l.NetDir)
	if err != nil {
		return nil, err
	}
	var devs []string
	for _, e := range entries {
		name := e.Name()
		if name == "lo" || strings.HasPrefix(name, ".") {
			continue
		}
		devs = append(devs, name)
	}
	return devs, nil
}

func (l SysLink) DeviceUp(dev string) (bool, error) {
	b, err := os.ReadFile(filepath.Join(l.NetDir, dev, "operstate"))
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(b)) {
	case "up", "unknown":
		return true, nil
	}
	return false, nil
}

func (l SysLink) Gateway() (string, error) {
	f, err := os.Open(l.RouteFile)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return parseRoutes(f)
}

// parseRoutes finds the default route in /proc/net/route format. Addresses
// are little-endian hex.
func parseRoutes(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[1] != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil || flags&0x2 == 0 { // RTF_GATEWAY
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			return "", fmt.Errorf("bad gateway %q: %w", fields[2], err)
		}
		ip := make(net.IP, 4)
		binary.LittleEndian.PutUint32(ip, uint32(gw))
		return ip.String(), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrNoRoute
}

// Pinger checks reachability of a host.
type Pinger interface {
	Ping(ctx context.Context, host string) error
}

// ErrNoReply means the host did not answer.
var ErrNoReply = errors.New("no ping reply")

// ExecPinger runs the system ping binary.
type ExecPinger struct {
	Path string // defaults to "ping"
}

func (p ExecPinger) Ping(ctx context.Context, host string) error {
	path := p.Path
	if path == "" {
		path = "ping"
	}
	cmd := exec.CommandContext(ctx, path, "-c", "1", "-W", "2", host)
	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return fmt.Errorf("%w from %s (exit %d)", ErrNoReply, host, exit.ExitCode())
		}
		return fmt.Errorf("run %s: %w", path, err)
	}
	return nil
}
