package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"offerkiosk/config"
	"offerkiosk/indexer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

var signalContext = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "export-events" {
		return runExport(args[1:], stdout, stderr)
	}
	fs := flag.NewFlagSet("kioskd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "./kiosk.toml", "Path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	node, err := newNode(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start node: %v\n", err)
		return 1
	}
	defer node.Close()

	ctx, cancel := signalContext()
	defer cancel()
	if err := node.Serve(ctx); err != nil {
		node.logger.Error("rpc server stopped", "error", err)
		return 1
	}
	return 0
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "./kiosk.toml", "Path to the configuration file")
	out := fs.String("out", "", "Destination parquet file")
	kioskID := fs.String("kiosk", "", "Only export events of this kiosk (hex id)")
	eventType := fs.String("type", "", "Only export events of this type")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 2
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	sink, err := indexer.Open(cfg.IndexerPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open event index: %v\n", err)
		return 1
	}
	defer sink.Close()
	q := indexer.Query{
		KioskID: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(*kioskID)), "0x"),
		Type:    strings.TrimSpace(*eventType),
	}
	n, err := sink.ExportParquet(context.Background(), *out, q)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "Export failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Exported %d events to %s\n", n, *out)
	return 0
}
