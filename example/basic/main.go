package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ghalamif/databridge"
)

func main() {
	flow, err := databridge.Conf("../../data/routes.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	bridge, err := flow.Bridge()
	if err != nil {
		log.Fatalf("build bridge: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sources must connect within 30s or the whole start is rolled back.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = bridge.Start(startCtx)
	cancel()
	if err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	log.Printf("bridge %s, metrics on %s", bridge.State(), bridge.MetricsAddr())

	<-ctx.Done()

	// Route statuses are gone once the bridge stops.
	final := bridge.Routes()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), flow.Config().Policy.StopTimeout+time.Second)
	defer cancelStop()
	if err := bridge.Stop(stopCtx); err != nil {
		log.Printf("stop bridge: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tSTATE\tRECEIVED\tDELIVERED\tDROPPED\tLAST ERROR")
	for _, r := range final {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.RouteID, r.State, r.Received, r.Delivered, r.Dropped, r.LastError)
	}
	_ = tw.Flush()
}
