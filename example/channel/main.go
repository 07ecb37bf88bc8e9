package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/databridge"
)

func main() {
	flow, err := databridge.Conf("../../data/routes.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, envelopes, closeEnvelopes := databridge.NewChannelSink("fanout", 32)
	defer closeEnvelopes()

	go fanoutWorker("history", envelopes)

	if err := flow.Sink("history", sink).Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("bridge exited: %v", err)
	}
}

func fanoutWorker(name string, envelopes <-chan databridge.Envelope) {
	for env := range envelopes {
		fmt.Printf("[%s] route=%s seq=%d at %s\n", name, env.RouteID, env.Seq, time.Now().Format(time.RFC3339))
	}
}
