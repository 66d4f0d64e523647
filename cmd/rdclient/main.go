// rdclient: CLI entry point.
//
// This tool opens a remote desktop session through a Guacamole gateway,
// either over a WebSocket tunnel or over a WebRTC DataChannel negotiated
// through a WebSocket signaling endpoint. It prints every connection state
// and clipboard payload, and sends each line typed on stdin to the remote
// clipboard.
//
// It can be launched interactively (no -url) or non-interactively via CLI
// flags (-url, -transport, -opt, -width, -height).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/rdclient/internal/client"
	"github.com/1ureka/rdclient/internal/config"
	"github.com/1ureka/rdclient/internal/state"
	"github.com/1ureka/rdclient/internal/util"
)

var version = "dev"

// shutdownTimeout bounds how long Ctrl+C waits for the session to close.
const shutdownTimeout = 5 * time.Second

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts optionFlags

	// CLI flags.
	urlFlag := flag.String("url", "", "Tunnel URL: Guacamole WebSocket endpoint or signaling endpoint")
	transportFlag := flag.String("transport", "ws", "Transport: ws or webrtc")
	flag.Var(&opts, "opt", "Handshake option KEY=VALUE (repeatable)")
	width := flag.Int("width", 1024, "Screen width sent in the handshake")
	height := flag.Int("height", 768, "Screen height sent in the handshake")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("rdclient v%s", version))
	pterm.Println()

	transport, err := config.ParseTransport(*transportFlag)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if *width < 0 || *height < 0 {
		util.LogError("invalid -width/-height: must not be negative")
		os.Exit(1)
	}

	cfg := config.Config{
		URL:       *urlFlag,
		Transport: transport,
		Options:   config.Options(opts),
		Screen:    config.FixedScreen{Width: *width, Height: *height},
		Debug:     *debugMode,
	}

	if cfg.URL == "" {
		// No -url flag → interactive mode.
		cfg.URL = askURL()
	} else if err := validateURL(cfg.URL); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if ok := run(ctx, cfg); !ok {
		os.Exit(1)
	}
	util.LogSuccess("session closed")
}

// run drives one connection attempt until it ends or ctx is cancelled. It
// reports whether the session ended without an error.
func run(ctx context.Context, cfg config.Config) bool {
	c, err := client.Dial(cfg.Transport, cfg.URL, cfg.Options, cfg.Screen)
	if err != nil {
		util.LogError("failed to create client: %v", err)
		return false
	}

	ended := make(chan state.State, 1)
	cancelStates := c.States().Subscribe(func(s state.State) {
		printState(s)
		if s.Ends() {
			select {
			case ended <- s:
			default:
			}
		}
	})
	defer cancelStates()

	cancelClipboard := c.Clipboard().Subscribe(func(text string) {
		pterm.Println(pterm.Cyan("clipboard: ") + fmt.Sprintf("%q", text))
	})
	defer cancelClipboard()

	util.StartStatsReporter(ctx)
	util.LogInfo("connecting to %s over %s", cfg.URL, cfg.Transport)
	c.Connect()

	go readClipboard(c)

	select {
	case s := <-ended:
		return !s.IsError()

	case <-ctx.Done():
		util.LogInfo("disconnecting...")
		c.Disconnect()
		select {
		case s := <-ended:
			return !s.IsError()
		case <-time.After(shutdownTimeout):
			util.LogWarning("session did not close within %s", shutdownTimeout)
			return false
		}
	}
}

// readClipboard sends every stdin line as clipboard text. It returns at EOF.
func readClipboard(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		c.SendClipboard(scanner.Text())
	}
}

func printState(s state.State) {
	switch {
	case s.IsError():
		pterm.Error.Println(s.String())
	case s == state.Connected:
		pterm.Success.Println(s.String())
	default:
		pterm.Info.Println(s.String())
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// optionFlags collects repeated -opt KEY=VALUE flags in order.
type optionFlags config.Options

func (o *optionFlags) String() string {
	return config.Options(*o).Encode()
}

func (o *optionFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", raw)
	}
	*o = append(*o, config.String(strings.TrimSpace(key), value))
	return nil
}

// validateURL checks that raw is an absolute ws, wss, http or https URL.
func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid tunnel URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		return nil
	default:
		return fmt.Errorf("invalid tunnel URL scheme %q: want ws, wss, http or https", u.Scheme)
	}
}

// askURL prompts the user for a valid tunnel URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Tunnel URL (e.g. wss://gateway.example.com/websocket-tunnel)").
			Show()

		if err := validateURL(raw); err == nil {
			pterm.Println()
			return strings.TrimSpace(raw)
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a ws://, wss://, http:// or https:// URL")
	}
}
