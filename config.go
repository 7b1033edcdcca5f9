package main

import (
	"flag"
	"fmt"
	"strings"
)

// DefaultServerURL is the relay used when none is configured.
const DefaultServerURL = "http://localhost:8080"

// Config holds runtime configuration
type Config struct {
	ServeMode bool
	Port      int
	ServerURL string
	Room      string
	Initiator bool
	UsePoll   bool
	File      string
	Help      bool

	// TURN server configuration
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

func parseFlags() Config {
	config := Config{}

	flag.BoolVar(&config.ServeMode, "serve", false, "Run as relay server only")
	flag.BoolVar(&config.ServeMode, "s", false, "Run as relay server only (shorthand)")

	flag.IntVar(&config.Port, "port", 8080, "Relay server port")
	flag.IntVar(&config.Port, "p", 8080, "Relay server port (shorthand)")

	flag.StringVar(&config.ServerURL, "server", "", "Relay server URL (default "+DefaultServerURL+")")
	flag.StringVar(&config.Room, "room", "", "Room code (generated when empty)")
	flag.BoolVar(&config.Initiator, "initiator", false, "Act as the call initiator")
	flag.BoolVar(&config.UsePoll, "poll", false, "Use the HTTP poll binding instead of websocket")
	flag.StringVar(&config.File, "file", "", "Local video file to announce on startup")

	// TURN server flags
	flag.StringVar(&config.TURNServer, "turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	flag.StringVar(&config.TURNUser, "turn-user", "", "TURN server username")
	flag.StringVar(&config.TURNPass, "turn-pass", "", "TURN server password")
	flag.BoolVar(&config.ForceRelay, "force-relay", false, "Force TURN relay (disable direct P2P)")

	flag.BoolVar(&config.Help, "help", false, "Show help")
	flag.BoolVar(&config.Help, "h", false, "Show help (shorthand)")

	flag.Parse()

	flag.Visit(func(f *flag.Flag) { explicitFlags[f.Name] = true })

	return config
}

// explicitFlags records which flags the user passed, so persisted
// preferences only fill true gaps.
var explicitFlags = map[string]bool{}

func flagSet(name string) bool { return explicitFlags[name] }

// wsBaseURL rewrites an http(s) relay URL to its websocket scheme.
func wsBaseURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

func printHelp() {
	fmt.Println(`watchparty - synchronized movie nights over a thin relay

Usage: watchparty [options]

One side runs with --initiator; the other joins the same room. The
relay only coordinates: the audio/video call and all playback-sync
messages flow peer to peer once connected.

Options:
  --room <code>          Room code (generated when empty)
  --initiator            Act as the call initiator
  --server <url>         Relay server URL (default ` + DefaultServerURL + `)
  --poll                 Use the HTTP poll binding instead of websocket
  --file <path>          Local video file to announce on startup
  --serve, -s            Run as relay server only
  --port, -p <port>      Relay server port (default: 8080)
  --help, -h             Show help

Network Options:
  --turn <url>           TURN server URL (e.g., turn:turn.example.com:3478)
  --turn-user <user>     TURN server username
  --turn-pass <pass>     TURN server password
  --force-relay          Force TURN relay (disable direct P2P)

TUI Controls:
  Space         Play / pause
  ← →           Seek 10 seconds
  q             Hang up and quit`)
}
