package machine

import (
	"time"

	"github.com/juju/clock"
)

const (
	DefaultBridge      = "br0"
	DefaultSysClassNet = "/sys/class/net"
	DefaultWaitUnit    = time.Second

	// WaitAttempts and the initial delay of WaitUnit/100, doubled after
	// every attempt, bound a readiness wait to 2.55 WaitUnits.
	WaitAttempts = 9

	TrustDir  = "/var/lib/barley"
	HostCAPub = "ca.pub"
)

// Config carries the operator environment. It is built once by the caller;
// the provisioner never looks up the environment on its own.
type Config struct {
	Bridge         string
	SysClassNet    string
	WaitUnit       time.Duration
	KnownHostsPath string
	Clock          clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Bridge == "" {
		c.Bridge = DefaultBridge
	}
	if c.SysClassNet == "" {
		c.SysClassNet = DefaultSysClassNet
	}
	if c.WaitUnit <= 0 {
		c.WaitUnit = DefaultWaitUnit
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

// Options select what to provision and where.
type Options struct {
	Image   string
	Version string
	Field   string
	Seed    string
	Local   bool
	// Network holds override lines for the [Network] section. The default
	// attaches the Machine to the shared bridge.
	Network []string
	// CA installs a Machine identity, then waits for the Machine and pins
	// its SSH host CA.
	CA bool
}
