// Standalone relay server: the websocket push binding and the HTTP poll
// binding on one port. The server never inspects payloads; it only fans
// messages out within a room.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	sig "github.com/dkarls/watchparty/pkg/signal"
)

func main() {
	var (
		port    = flag.Int("port", 8080, "listen port")
		ttl     = flag.Duration("mailbox-ttl", sig.DefaultMailboxTTL, "idle poll-room retention")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		logging.SetLogLevel("signal", "debug")
	} else {
		logging.SetLogLevel("signal", "info")
	}

	server := sig.NewServer(*ttl)
	addr := fmt.Sprintf(":%d", *port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Relay server listening on http://localhost%s\n", addr)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case <-stop:
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
