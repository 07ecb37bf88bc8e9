package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/databridge/pkg/databridge"
)

type routesReport struct {
	State  databridge.State         `json:"state"`
	Routes []databridge.RouteStatus `json:"routes"`
}

func newStatsCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll a running bridge and print per-route counters",
		Example: `  databridge stats --url http://localhost:9100 --interval 1s
  databridge stats --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			out := cmd.OutOrStdout()
			if once {
				return printRoutes(cmd.Context(), client, url, out)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(out, "Streaming route stats from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printRoutes(ctx, client, url, out); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100", "base URL of the bridge metrics server")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	cmd.Flags().BoolVar(&once, "once", false, "print one snapshot and exit")
	return cmd
}

func printRoutes(ctx context.Context, client *http.Client, base string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/routes", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var report routesReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode routes: %w", err)
	}

	fmt.Fprintf(out, "[%s] bridge %s\n", time.Now().Format(time.RFC3339), report.State)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tSTATE\tRECEIVED\tDELIVERED\tDROPPED\tLAST ERROR")
	for _, r := range report.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.RouteID, r.State, r.Received, r.Delivered, r.Dropped, r.LastError)
	}
	return tw.Flush()
}
