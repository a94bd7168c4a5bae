// Package main provides a performance benchmarking tool for the EPSS CLI.
// It measures how long the changelog commands take for each cache format and
// backend, running each test multiple times, treating the first successful run
// as cold and averaging the rest as warm, and writes the results as CSV.
//
// Prerequisites:
// - epss binary installed and available in PATH
// - network access to the score publisher (or --source-url in .epss.yaml)
//
// Usage: go run benchmark/main.go [min-date] [max-date]
//
//	min-date, max-date: Date range of the changelog (YYYY-MM-DD)
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Format      string
	Backend     string
	Command     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	MinDate     string
	MaxDate     string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Formats     []string
	Backends    []string
	Commands    map[string][]string
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 3 {
		fmt.Printf("Usage: %s [min-date] [max-date]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		MinDate:     os.Args[1],
		MaxDate:     os.Args[2],
		Timeout:     10 * time.Minute,
		Workers:     8,
		NoCacheRuns: 2,
		CacheRuns:   4,
		Formats:     []string{"parquet", "csv.gz", "jsonl"},
		Backends:    []string{"filesystem", "sqlite", "badger"},
		Commands: map[string][]string{
			"changelog": {"changelog", "--min-date", os.Args[1], "--max-date", os.Args[2]},
			"range":     {"range", "--min-date", os.Args[1], "--max-date", os.Args[2], "--min-percentile", "0.99"},
			"diff":      {"diff", os.Args[1], os.Args[2]},
		},
	}

	if err := checkPrerequisites(); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results, config)
}

// checkPrerequisites verifies that the epss binary exists
func checkPrerequisites() error {
	if _, err := exec.LookPath("epss"); err != nil {
		return fmt.Errorf("epss binary not found in PATH")
	}
	return nil
}

// runBenchmarks executes every command for each format and backend
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %s to %s, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		config.MinDate, config.MaxDate, config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	for _, format := range config.Formats {
		for _, backend := range config.Backends {
			workDir, err := os.MkdirTemp("", "epss-benchmark-*")
			if err != nil {
				fmt.Printf("Warning: failed to create workdir: %v\n", err)
				continue
			}
			fmt.Printf("Benchmarking %s on %s (%s)\n", format, backend, workDir)

			for _, command := range []string{"changelog", "range", "diff"} {
				result := runBenchmarkSuite(config, workDir, format, backend, command)
				results = append(results, result)
			}

			_ = os.RemoveAll(workDir)
		}
	}

	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, workDir, format, backend, command string) BenchmarkResult {
	fmt.Printf("Running %s with %s/%s\n", command, format, backend)

	// Helper to run a benchmark phase
	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, workDir, format, cacheBackend, config.Commands[command], numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avg := sum / float64(len(times))
			avgTime = fmt.Sprintf("%.3fs", avg)
		}
		return cold, avgTime
	}

	// Phase 1: No-cache runs
	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")

	// Phase 2: Cache runs
	coldTime, warmAvg := runPhase(backend, config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Format:      format,
		Backend:     backend,
		Command:     command,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes an epss command multiple times with specified cache backend and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, workDir, format, cacheBackend string, commandArgs []string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := append([]string{}, commandArgs...)
	args = append(args,
		"--workdir", workDir,
		"--format", format,
		"--cache-backend", cacheBackend,
		"--workers", fmt.Sprint(config.Workers),
		"--color", "no",
	)

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("epss", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && isSuccess(output) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			// Timeout - don't add to times
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// isSuccess checks if command output indicates successful completion
func isSuccess(output []byte) bool {
	outputStr := string(output)
	return strings.Contains(outputStr, "Completed in") &&
		strings.Contains(outputStr, "workers")
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/epss_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"format", "backend", "cmd", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, r := range results {
		if err := writer.Write([]string{r.Format, r.Backend, r.Command, r.NoCacheTime, r.ColdTime, r.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult, config BenchmarkConfig) {
	fmt.Printf("Benchmark complete\n")

	for _, command := range []string{"changelog", "range", "diff"} {
		fmt.Printf("%s:\n", command)
		for _, r := range results {
			if r.Command == command {
				label := r.Format + "/" + r.Backend
				fmt.Printf("  %-22s: No-cache: %s, Cold: %s, Warm: %s\n", label, r.NoCacheTime, r.ColdTime, r.WarmTime)
			}
		}
	}

	fmt.Printf("Benchmark of %s to %s completed successfully\n", config.MinDate, config.MaxDate)
}
