// Facelink — CLI entry point.
//
// This tool makes a two-party audio/video call over WebRTC without any
// signaling server: each side copies its session description to the other by
// hand (chat, mail, anything), through the terminal or a local web panel.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (--video, --audio, --relay, --connect, ...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/facelink/internal/app"
	"github.com/1ureka/facelink/internal/config"
	"github.com/1ureka/facelink/internal/util"
)

var version = "dev"

var (
	flagSTUN          []string
	flagVideo         string
	flagAudio         string
	flagOut           string
	flagRelay         string
	flagPanelAddr     string
	flagGatherTimeout time.Duration
	flagNoMDNS        bool
	flagConnect       bool
	flagDebug         bool
)

var rootCmd = &cobra.Command{
	Use:   "facelink",
	Short: "Serverless two-party video call with copy/paste signaling",
	Long: `Facelink starts a WebRTC audio/video call between two people without a
signaling server. One side types "connect" and sends the printed offer to the
other side, which pastes it and sends back the printed answer.

Examples:
  facelink --video cam.ivf --audio mic.ogg --connect
  facelink --relay panel --out ./recordings
  facelink --stun stun:stun.example.org:3478 --gather-timeout 10s`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{
			STUNServers:   flagSTUN,
			VideoPath:     flagVideo,
			AudioPath:     flagAudio,
			OutDir:        flagOut,
			Relay:         flagRelay,
			PanelAddr:     flagPanelAddr,
			GatherTimeout: flagGatherTimeout,
			DisableMDNS:   flagNoMDNS,
			AutoConnect:   flagConnect,
			Debug:         flagDebug,
		}

		// No flags → interactive mode.
		if cmd.Flags().NFlag() == 0 {
			runInteractive(&opts)
		}

		cfg, err := config.Load(opts)
		if err != nil {
			return err
		}
		if cfg.Debug {
			util.EnableDebug()
		}

		return app.Run(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringSliceVar(&flagSTUN, "stun", nil, "STUN server URL (repeatable, env "+config.EnvSTUN+")")
	f.StringVar(&flagVideo, "video", "", "IVF file used as the camera (env "+config.EnvVideo+")")
	f.StringVar(&flagAudio, "audio", "", "Ogg/Opus file used as the microphone (env "+config.EnvAudio+")")
	f.StringVar(&flagOut, "out", "", "Directory where remote media is recorded (env "+config.EnvOut+")")
	f.StringVar(&flagRelay, "relay", "", "How descriptions are exchanged: terminal or panel (env "+config.EnvRelay+")")
	f.StringVar(&flagPanelAddr, "panel-addr", "", "Listen address of the web panel (env "+config.EnvPanelAddr+")")
	f.DurationVar(&flagGatherTimeout, "gather-timeout", 0, "Give up when candidate gathering takes longer (env "+config.EnvGatherTimeout+")")
	f.BoolVar(&flagNoMDNS, "no-mdns", false, "Expose host addresses instead of .local names (env "+config.EnvNoMDNS+")")
	f.BoolVar(&flagConnect, "connect", false, "Start the call as the offerer right away")
	f.BoolVar(&flagDebug, "debug", false, "Enable debug logging (env "+config.EnvDebug+")")
}

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("Facelink — v%s", version))
	pterm.Println()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("call ended")
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// runInteractive fills opts from prompts when no flag is provided.
func runInteractive(opts *config.Options) {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Terminal — copy and paste here", "Panel    — use a local web page"}).
		WithDefaultText("How do you want to exchange descriptions?").
		Show()
	pterm.Println()

	if strings.HasPrefix(mode, "Panel") {
		opts.Relay = string(config.RelayPanel)
	} else {
		opts.Relay = string(config.RelayTerminal)
	}

	opts.VideoPath = askFile("Camera file (.ivf, empty for none)")
	opts.AudioPath = askFile("Microphone file (.ogg, empty for none)")

	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Call — I start the call", "Wait — the other side calls me"}).
		WithDefaultText("Who starts?").
		Show()
	pterm.Println()

	opts.AutoConnect = strings.HasPrefix(role, "Call")
}

// askFile prompts for an optional path until it is empty or names a file.
func askFile(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		path := strings.TrimSpace(raw)
		if path == "" {
			pterm.Println()
			return ""
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			pterm.Println()
			return path
		}

		util.LogWarning("no such file: %s", path)
		pterm.Println()
	}
}
