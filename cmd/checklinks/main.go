package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deadref/packages/checker"
	"deadref/packages/coordinator"
	"deadref/packages/domain"
)

var (
	flagFile       string
	flagJSON       bool
	flagTimeout    time.Duration
	flagNoParallel bool
	flagMaxWorkers int
)

var rootCmd = &cobra.Command{
	Use:   "checklinks [url ...]",
	Short: "Classifies URLs given on the command line",
	Long: `Runs the link classifier against ad-hoc URLs, without any Wikipedia
involvement. URLs come from the arguments, from --file, or both.`,
	Run: run,
}

func init() {
	rootCmd.Flags().StringVar(&flagFile, "file", "", "Read URLs from a file, one per line")
	rootCmd.Flags().BoolVar(&flagJSON, "json", false, "Emit results as JSON instead of text")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "Per-request timeout for link probes")
	rootCmd.Flags().BoolVar(&flagNoParallel, "no-parallel", false, "Check URLs one at a time")
	rootCmd.Flags().IntVar(&flagMaxWorkers, "max-workers", 10, "Concurrent probe workers")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) {
	// Results own stdout. Logs go to stderr, and only the ones that matter.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	urls := args
	if flagFile != "" {
		fromFile, err := readURLFile(flagFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "no URLs given: pass them as arguments or with --file")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	targets := make([]domain.LinkTarget, len(urls))
	for i, u := range urls {
		targets[i] = domain.LinkTarget{OriginalURL: u}
	}

	check := checker.New(checker.Options{Timeout: flagTimeout})
	coord := coordinator.New(check, coordinator.Options{
		Parallel:   !flagNoParallel,
		MaxWorkers: flagMaxWorkers,
		Delay:      100 * time.Millisecond,
	})

	results := coord.Run(ctx, targets)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var dead int
	for _, r := range results {
		fmt.Printf("%-16s %-16s %s\n", r.Status, r.Code(), r.Target.OriginalURL)
		if r.Status == domain.StatusDead {
			dead++
		}
	}
	fmt.Printf("\n%d checked, %d dead\n", len(results), dead)
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
