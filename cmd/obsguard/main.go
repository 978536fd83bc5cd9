package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/obsguard/obsguard/internal/checks"
	"github.com/obsguard/obsguard/pkg/config"
	"github.com/obsguard/obsguard/pkg/gate"
	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/resilience"
)

const version = "1.0.0"

func main() {
	preset := flag.String("preset", "full", "gate preset: quick, full, or strict")
	mode := flag.String("mode", "", "override check mode: parallel or sequential")
	timeout := flag.Duration("timeout", 0, "override per-check timeout")
	failOnWarning := flag.Bool("fail-on-warning", false, "exit non-zero on a warning result")
	jsonOutput := flag.Bool("json", false, "emit the full result as JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("obsguard v%s\n", version)
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      "stderr",
		ServiceName: "obsguard",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	opts, err := presetOptions(*preset, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	switch *mode {
	case "":
	case string(gate.ModeParallel):
		opts.Mode = gate.ModeParallel
	case string(gate.ModeSequential):
		opts.Mode = gate.ModeSequential
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	if *timeout > 0 {
		opts.CheckTimeout = *timeout
	}

	manager := resilience.NewManager(resilience.DefaultManagerConfig(), resilience.WithLogger(logger))
	manager.Start()
	defer manager.Stop()

	gatekeeper := gate.NewGatekeeper(
		checks.Defaults(manager, cfg, logger),
		gate.WithLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result := gatekeeper.RunGateCheck(ctx, opts)

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
	} else {
		printResult(result)
	}

	os.Exit(gate.ExitCode(result, *failOnWarning || cfg.Gate.FailOnWarning))
}

func presetOptions(preset string, cfg *config.Config) (gate.Options, error) {
	switch preset {
	case "quick":
		return gate.QuickOptions(), nil
	case "full":
		opts := gate.FullOptions(cfg.Gate.Environment)
		opts.CheckTimeout = cfg.Gate.CheckTimeout
		opts.RunBudget = cfg.Gate.RunBudget
		opts.Strict = opts.Strict || cfg.Gate.StrictMode
		if !cfg.Gate.Parallel {
			opts.Mode = gate.ModeSequential
		}
		return opts, nil
	case "strict":
		return gate.StrictOptions(), nil
	default:
		return gate.Options{}, fmt.Errorf("unknown preset %q", preset)
	}
}

func printResult(result *gate.GateResult) {
	fmt.Printf("Gate result: %s (score %d, grade %s, confidence %.2f)\n",
		result.Overall.Recommendation, result.Overall.Score, result.Overall.Grade, result.Overall.Confidence)
	fmt.Printf("Checks run: %d in %s\n", len(result.Checks), result.Metrics.TotalDuration.Round(time.Millisecond))
	fmt.Println()

	printIssues("P0", result.Gate.P0Issues)
	printIssues("P1", result.Gate.P1Issues)
	printIssues("P2", result.Gate.P2Issues)

	if len(result.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, recommendation := range result.Recommendations {
			fmt.Printf("  - %s\n", recommendation)
		}
		fmt.Println()
	}

	fmt.Println(result.Summary)
}

func printIssues(tier string, issues []gate.GateIssue) {
	if len(issues) == 0 {
		return
	}
	fmt.Printf("%s issues:\n", tier)
	for _, issue := range issues {
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Check, issue.Title)
		if issue.Description != "" {
			fmt.Printf("      %s\n", issue.Description)
		}
	}
	fmt.Println()
}
