package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ghalamif/AegisWatch"
	"github.com/ghalamif/AegisWatch/internal/app/engine"
)

//go:embed assets/banner.txt
var banner string

func main() {
	if os.Getenv("AEGIS_NO_BANNER") == "" {
		fmt.Println(banner)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "alarms":
		err = alarmsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("aegis-watch %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to the engine configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := aegiswatch.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

// validateCommand loads the config and builds the condition graph without
// starting collectors, so layout, threshold and cycle errors surface too.
func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := aegiswatch.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	eng, err := engine.Build(cfg, engine.Options{})
	if err != nil {
		return err
	}
	eng.Stop()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Sensors", "Leaves", "Nodes", "Roots", "Actions"})
	tw.AppendRow(table.Row{
		len(cfg.Sensors),
		len(cfg.Conditions.Leaves),
		len(cfg.Conditions.Nodes),
		len(cfg.Conditions.Roots),
		len(cfg.Actions),
	})
	tw.Render()
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func alarmsCommand(args []string) error {
	fs := flag.NewFlagSet("alarms", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/alarms", "Alarms endpoint of a running engine")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	active, err := fetchAlarms(*url)
	if err != nil {
		return err
	}
	return printAlarms(os.Stdout, active, *asJSON)
}

func fetchAlarms(url string) ([]aegiswatch.ActiveCondition, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var active []aegiswatch.ActiveCondition
	if err := json.NewDecoder(resp.Body).Decode(&active); err != nil {
		return nil, fmt.Errorf("decode alarms: %w", err)
	}
	return active, nil
}

func printAlarms(w io.Writer, active []aegiswatch.ActiveCondition, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(active)
	}
	if len(active) == 0 {
		_, err := fmt.Fprintln(w, "no active conditions")
		return err
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Since"})
	for _, c := range active {
		tw.AppendRow(table.Row{c.ID, c.Name, c.Since.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets, err := scanMetrics(resp.Body, statsMetrics...)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] packets=%.0f active=%.0f transitions=%.0f wal_bytes=%.0f queue=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets[statsMetrics[0]],
		targets[statsMetrics[1]],
		targets[statsMetrics[2]],
		targets[statsMetrics[3]],
		targets[statsMetrics[4]],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`AegisWatch CLI

Usage:
  aegis-watch <command> [flags]

Commands:
  run        Start the condition engine using the provided config
  validate   Load a config and build its condition graph without starting anything
  stats      Poll the Prometheus metrics endpoint and print live counters
  alarms     List the root conditions a running engine reports as true

Examples:
  aegis-watch run -config ./data/config.yaml
  aegis-watch validate -config ./data/config.yaml
  aegis-watch stats -url http://localhost:9100/metrics -interval 1s
  aegis-watch alarms -url http://localhost:9100/alarms
`)
}
