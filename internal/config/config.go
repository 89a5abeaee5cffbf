// Package config holds the CLI configuration types.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RelayMode selects how descriptions travel between the two users.
type RelayMode string

const (
	RelayTerminal RelayMode = "terminal"
	RelayPanel    RelayMode = "panel"
)

// Default configuration values
const (
	DefaultRelay     = RelayTerminal
	DefaultPanelAddr = "127.0.0.1:0"
)

// DefaultSTUN is the public STUN pair used when nothing else is configured.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Environment variables read by Load.
const (
	EnvSTUN          = "FACELINK_STUN"
	EnvVideo         = "FACELINK_VIDEO"
	EnvAudio         = "FACELINK_AUDIO"
	EnvOut           = "FACELINK_OUT"
	EnvRelay         = "FACELINK_RELAY"
	EnvPanelAddr     = "FACELINK_PANEL_ADDR"
	EnvGatherTimeout = "FACELINK_GATHER_TIMEOUT"
	EnvNoMDNS        = "FACELINK_NO_MDNS"
	EnvDebug         = "FACELINK_DEBUG"
)

// Constraints are what we ask of the camera and microphone.
type Constraints struct {
	MinFrameRate int
	MaxFrameRate int
	Audio        bool
}

// DefaultConstraints asks for 10 to 15 fps video plus audio.
var DefaultConstraints = Constraints{MinFrameRate: 10, MaxFrameRate: 15, Audio: true}

// Config stores the resolved parameters of one run.
type Config struct {
	STUNServers   []string
	VideoPath     string // Camera source; empty means no camera
	AudioPath     string // Microphone source; empty means no microphone
	OutDir        string // Where remote media is written; empty means log only
	Relay         RelayMode
	PanelAddr     string
	GatherTimeout time.Duration // 0 waits for gathering indefinitely
	DisableMDNS   bool
	AutoConnect   bool
	Debug         bool
	Constraints   Constraints
}

// Options carries CLI flag values. Zero values mean "not set on the command
// line".
type Options struct {
	STUNServers   []string
	VideoPath     string
	AudioPath     string
	OutDir        string
	Relay         string
	PanelAddr     string
	GatherTimeout time.Duration
	DisableMDNS   bool
	AutoConnect   bool
	Debug         bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	// STUN servers: CLI flag > env > default
	stun := opts.STUNServers
	if len(stun) == 0 {
		if env := os.Getenv(EnvSTUN); env != "" {
			stun = strings.Split(env, ",")
		}
	}
	if len(stun) == 0 {
		stun = DefaultSTUN
	}
	stun = trimAll(stun)

	relay := opts.Relay
	if relay == "" {
		relay = os.Getenv(EnvRelay)
	}
	if relay == "" {
		relay = string(DefaultRelay)
	}

	panelAddr := opts.PanelAddr
	if panelAddr == "" {
		panelAddr = os.Getenv(EnvPanelAddr)
	}
	if panelAddr == "" {
		panelAddr = DefaultPanelAddr
	}

	gatherTimeout := opts.GatherTimeout
	if gatherTimeout == 0 {
		if env := os.Getenv(EnvGatherTimeout); env != "" {
			d, err := time.ParseDuration(env)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", EnvGatherTimeout, err)
			}
			gatherTimeout = d
		}
	}

	noMDNS, err := flagOrEnvBool(opts.DisableMDNS, EnvNoMDNS)
	if err != nil {
		return nil, err
	}
	debug, err := flagOrEnvBool(opts.Debug, EnvDebug)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		STUNServers:   stun,
		VideoPath:     flagOrEnv(opts.VideoPath, EnvVideo),
		AudioPath:     flagOrEnv(opts.AudioPath, EnvAudio),
		OutDir:        flagOrEnv(opts.OutDir, EnvOut),
		Relay:         RelayMode(strings.ToLower(relay)),
		PanelAddr:     panelAddr,
		GatherTimeout: gatherTimeout,
		DisableMDNS:   noMDNS,
		AutoConnect:   opts.AutoConnect,
		Debug:         debug,
		Constraints:   DefaultConstraints,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that cannot work.
func (c *Config) Validate() error {
	switch c.Relay {
	case RelayTerminal, RelayPanel:
	default:
		return fmt.Errorf("unknown relay mode %q (want %q or %q)", c.Relay, RelayTerminal, RelayPanel)
	}
	if c.GatherTimeout < 0 {
		return fmt.Errorf("gather timeout must not be negative, got %s", c.GatherTimeout)
	}
	for i, s := range c.STUNServers {
		if s == "" {
			return fmt.Errorf("STUN server #%d is empty", i+1)
		}
	}
	if c.Relay == RelayPanel && c.PanelAddr == "" {
		return fmt.Errorf("panel relay needs a listen address")
	}
	return nil
}

// HasCamera reports whether a video source is configured.
func (c *Config) HasCamera() bool { return c.VideoPath != "" }

// HasMicrophone reports whether an audio source is configured.
func (c *Config) HasMicrophone() bool { return c.AudioPath != "" && c.Constraints.Audio }

func flagOrEnv(flag, env string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(env)
}

func flagOrEnvBool(flag bool, env string) (bool, error) {
	if flag {
		return true, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", env, err)
	}
	return b, nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
