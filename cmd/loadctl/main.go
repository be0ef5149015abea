// Command loadctl drives load, stress, and API tests in-process (no
// HTTP hop to a running server) and prints the finished result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/controllers"
	"github.com/loadpulse/loadpulse/pkg/printer"
	"github.com/loadpulse/loadpulse/pkg/timeseries"
	"github.com/loadpulse/loadpulse/pkg/types"
)

func newController() *controllers.Controller {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return controllers.New(broker.NewRegistry(), broker.NewRunFlag(), broker.NewLiveBroker(logger), timeseries.New(), logger)
}

// awaitTerminal polls the registry until id reaches a terminal status,
// since the controller's Start* methods return as soon as the run begins.
func awaitTerminal(ctrl *controllers.Controller, id string) types.TestResult {
	for {
		result, ok := ctrl.Registry.Get(id)
		if ok && result.Status.IsTerminal() {
			return result
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func render(result types.TestResult) int {
	if err := (printer.TablePrinter{}).Print(os.Stdout, result); err != nil {
		fmt.Fprintln(os.Stderr, "print failed:", err)
	}
	if result.Status == types.StatusCompleted {
		return 0
	}
	return 1
}

func newLoadTestCmd() *cobra.Command {
	var targetURL string
	var numRequests, concurrentUsers int

	cmd := &cobra.Command{
		Use:   "load-test",
		Short: "Drive a fixed number of requests against a target URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			id, err := ctrl.StartLoad(context.Background(), targetURL, numRequests, concurrentUsers)
			if err != nil {
				return err
			}
			os.Exit(render(awaitTerminal(ctrl, id)))
			return nil
		},
	}
	cmd.Flags().StringVar(&targetURL, "url", "", "target URL (required)")
	cmd.Flags().IntVar(&numRequests, "requests", types.DefaultConcurrentUsers*10, "total number of requests")
	cmd.Flags().IntVar(&concurrentUsers, "concurrency", types.DefaultConcurrentUsers, "concurrent requests in flight")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newStressTestCmd() *cobra.Command {
	var targetURL, sitemapPath string
	var durationSecs, concurrentUsers int

	cmd := &cobra.Command{
		Use:   "stress-test",
		Short: "Drive requests against a target URL for a fixed duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			id, err := ctrl.StartStress(context.Background(), targetURL, durationSecs, concurrentUsers, sitemapPath)
			if err != nil {
				return err
			}
			os.Exit(render(awaitTerminal(ctrl, id)))
			return nil
		},
	}
	cmd.Flags().StringVar(&targetURL, "url", "", "target URL")
	cmd.Flags().StringVar(&sitemapPath, "sitemap", "", "sitemap.xml path to spread load across multiple URLs")
	cmd.Flags().IntVar(&durationSecs, "duration", 30, "test duration in seconds")
	cmd.Flags().IntVar(&concurrentUsers, "concurrency", types.DefaultConcurrentUsers, "concurrent requests in flight")
	return cmd
}

func newAPITestCmd() *cobra.Command {
	var suitePath string
	var concurrentUsers int

	cmd := &cobra.Command{
		Use:   "api-test",
		Short: "Run a scripted suite of HTTP assertions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			id, err := ctrl.StartAPIFromFile(context.Background(), suitePath, concurrentUsers)
			if err != nil {
				return err
			}
			os.Exit(render(awaitTerminal(ctrl, id)))
			return nil
		},
	}
	cmd.Flags().StringVar(&suitePath, "path", "", "path to a JSON api test suite (required)")
	cmd.Flags().IntVar(&concurrentUsers, "concurrency", types.DefaultAPIConcurrency, "concurrent requests in flight")
	cmd.MarkFlagRequired("path")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "loadctl",
		Short: "Drive load, stress, and API tests against an HTTP target",
	}
	root.AddCommand(newLoadTestCmd(), newStressTestCmd(), newAPITestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
