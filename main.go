package main

import (
	"fmt"
	"log"

	"github.com/dkarls/watchparty/pkg/playback"
	"github.com/dkarls/watchparty/pkg/rtc"
	"github.com/dkarls/watchparty/pkg/settings"
	"github.com/dkarls/watchparty/pkg/signal"
)

func main() {
	config := parseFlags()

	if config.Help {
		printHelp()
		return
	}

	// Server-only mode
	if config.ServeMode {
		runRelayServer(config.Port)
		return
	}

	// Fill gaps from persisted preferences, then defaults.
	saved, err := settings.Load()
	if err != nil {
		log.Printf("settings: %v (using defaults)", err)
	}
	if config.ServerURL == "" {
		config.ServerURL = saved.ServerURL
	}
	if config.ServerURL == "" {
		config.ServerURL = DefaultServerURL
	}
	if config.Room == "" {
		config.Room = saved.Room
	}
	if config.Room == "" {
		config.Room = GenerateRoomCode()
		fmt.Printf("Room code: %s (share it with your peer)\n", config.Room)
	}
	if config.TURNServer == "" {
		config.TURNServer = saved.TURNServer
		config.TURNUser = saved.TURNUser
		config.TURNPass = saved.TURNPass
	}
	if !flagSet("poll") {
		config.UsePoll = saved.UsePoll
	}
	if !flagSet("force-relay") {
		config.ForceRelay = saved.ForceRelay
	}

	// Remember connection preferences for the next run. The room code is
	// per-party and stays whatever the user saved themselves.
	saved.ServerURL = config.ServerURL
	saved.UsePoll = config.UsePoll
	saved.TURNServer = config.TURNServer
	saved.TURNUser = config.TURNUser
	saved.TURNPass = config.TURNPass
	saved.ForceRelay = config.ForceRelay
	if err := settings.Save(saved); err != nil {
		log.Printf("settings: save: %v", err)
	}

	roomID := signal.NormalizeRoomID(config.Room)
	transport := newTransport(config)

	session, err := rtc.Start(transport, rtc.Config{
		RoomID:    roomID,
		Initiator: config.Initiator,
		ICE: rtc.ICEConfig{
			TURNServer: config.TURNServer,
			TURNUser:   config.TURNUser,
			TURNPass:   config.TURNPass,
			ForceRelay: config.ForceRelay,
		},
	})
	if err != nil {
		log.Fatalf("start call: %v", err)
	}

	player := playback.NewVirtualPlayer()
	engine, err := playback.NewEngine(transport, syncRoomID(roomID), player)
	if err != nil {
		session.Close()
		log.Fatalf("start playback sync: %v", err)
	}

	if config.File != "" {
		player.Load(config.File)
		engine.BroadcastLoad(config.File)
	}

	if err := RunTUI(config, session, engine, player); err != nil {
		log.Printf("tui: %v", err)
	}

	engine.Close()
	session.Close()
}

// newTransport selects the relay binding: websocket push by default,
// HTTP polling as the fallback.
func newTransport(config Config) signal.Transport {
	if config.UsePoll {
		return signal.NewPollTransport(config.ServerURL, 0)
	}
	return signal.NewWSTransport(wsBaseURL(config.ServerURL))
}

func runRelayServer(port int) {
	server := signal.NewServer(0)
	addr := fmt.Sprintf(":%d", port)

	fmt.Printf("Starting relay server on http://localhost%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.StartServer(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
