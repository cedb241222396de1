package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"taskplanner/internal/events"
	"taskplanner/pkg/logger"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated Kafka brokers")
	topic := flag.String("topic", "realtime-events", "Kafka topic the server consumes")
	user := flag.String("user", "", "deliver to this user id")
	room := flag.String("room", "", "deliver to this room, e.g. task:42")
	all := flag.Bool("all", false, "deliver to every connected user")
	event := flag.String("event", "notification", "event name")
	data := flag.String("data", "{}", "JSON payload")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, *level)

	if !json.Valid([]byte(*data)) {
		fmt.Fprintln(os.Stderr, "-data must be valid JSON")
		os.Exit(2)
	}
	payload := json.RawMessage(*data)

	var brokerList []string
	for _, b := range strings.Split(*brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}

	publisher, err := events.NewPublisher(brokerList, *topic, log)
	if err != nil {
		log.Error("Failed to create publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	switch {
	case *user != "":
		err = publisher.PublishToUser(*user, *event, payload)
	case *room != "":
		err = publisher.PublishToRoom(*room, *event, payload)
	case *all:
		err = publisher.PublishToAll(*event, payload)
	default:
		fmt.Fprintln(os.Stderr, "one of -user, -room or -all is required")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Failed to publish event", "error", err)
		os.Exit(1)
	}
	log.Info("Event published", "event", *event, "topic", *topic)
}
