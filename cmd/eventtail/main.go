// Command eventtail follows a festival's live event feed from the terminal.
// It connects through the resilient client, subscribes the requested
// channels, and prints each received envelope as a JSON line, surviving
// server restarts and network flaps transparently.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mimi6060/festivals-sub018/internal/client"
	"github.com/mimi6060/festivals-sub018/internal/logging"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

func main() {
	var (
		baseURL  = flag.String("url", "ws://localhost:8080", "server base URL")
		festival = flag.String("festival", "", "festival id to follow (required)")
		channels = flag.String("channels", "", "comma-separated channels to subscribe, e.g. dashboard,alerts")
		ping     = flag.Duration("ping", 30*time.Second, "heartbeat interval")
		duration = flag.Duration("duration", 0, "exit after this long (0 = run until interrupted)")
		logLevel = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *festival == "" {
		fmt.Fprintln(os.Stderr, "eventtail: -festival is required")
		flag.Usage()
		os.Exit(2)
	}

	logging.Init(*logLevel, "text")

	registry := client.NewRegistry(client.Config{
		PingInterval: *ping,
		Logger:       slog.Default(),
	})
	defer registry.CloseAll()

	endpoint := strings.TrimSuffix(*baseURL, "/") + "/ws/" + *festival
	c := registry.Get(endpoint)

	c.OnConnectionChange(func(state client.ConnState) {
		slog.Warn("connection state changed", "state", string(state))
	})
	c.OnMessage(client.Wildcard, func(env realtime.Envelope) {
		if env.Type == realtime.TypePing || env.Type == realtime.TypePong {
			return
		}
		line, err := json.Marshal(env)
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})

	for _, ch := range strings.Split(*channels, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.SubscribeChannel(ch)
		}
	}

	if err := c.Connect(); err != nil {
		slog.Warn("initial connect failed, retrying in background", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-sigChan:
	case <-timeout:
	}

	c.Disconnect()
}
