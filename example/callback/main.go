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

	printer := func(_ context.Context, env databridge.Envelope) error {
		fmt.Printf("%s route=%s seq=%d payload=%s\n",
			env.Timestamp.Format(time.RFC3339Nano),
			env.RouteID,
			env.Seq,
			env.Payload,
		)
		return nil
	}

	if err := flow.Callback("twin", printer).Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("bridge exited: %v", err)
	}
}
