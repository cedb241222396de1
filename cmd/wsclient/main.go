package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskplanner/pkg/logger"
	"taskplanner/pkg/wsclient"
)

var printedEvents = []string{
	"connected",
	"notification",
	"task:created",
	"task:updated",
	"task:deleted",
	"event:created",
	"event:updated",
	"event:deleted",
	"force-disconnect",
	"pong",
	"user:role-updated",
	"user:status-updated",
}

func main() {
	url := flag.String("url", "ws://localhost:5051/api/v1/ws", "WebSocket endpoint")
	token := flag.String("token", os.Getenv("TASKPLANNER_TOKEN"), "bearer token (defaults to $TASKPLANNER_TOKEN)")
	task := flag.String("task", "", "task id to subscribe to after each connect")
	reconnect := flag.Duration("reconnect", wsclient.DefaultReconnectDelay, "delay before re-dialing a dropped connection")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, *level)
	client := wsclient.New(wsclient.Options{
		URL:            *url,
		Session:        wsclient.NewTokenSession(*token),
		ReconnectDelay: *reconnect,
		Logger:         log,
	})

	for _, event := range printedEvents {
		client.AddListener(event, func(data json.RawMessage) error {
			fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), event, data)
			return nil
		})
	}
	if *task != "" {
		// Room joins do not survive a reconnect, so re-subscribe on every connect.
		client.AddListener("connected", func(json.RawMessage) error {
			if !client.SubscribeToTask(*task) {
				return fmt.Errorf("subscribe to task %s dropped", *task)
			}
			return nil
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, wsclient.DefaultHandshakeTimeout)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	client.Disconnect()
}
