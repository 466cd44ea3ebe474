package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"reelshelf/internal/config"
)

type probeResult struct {
	Target  string
	OK      bool
	Latency time.Duration
	Err     error
}

func newCheckCmd() *cobra.Command {
	var (
		dir        string
		urls       []string
		timeout    time.Duration
		concurrent int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the videos directory and probe running servers",
		Long:  "Check the videos directory and probe the /health endpoint of each --url. Exits non-zero when anything is unhealthy.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), client, dir, urls, concurrent)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", envOr("VIDEOS_DIR", "./videos"), "videos directory, empty to skip")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "server base URL to probe, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "per probe timeout")
	cmd.Flags().IntVar(&concurrent, "concurrency", 4, "probes in flight")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, client *http.Client, dir string, urls []string, concurrent int) error {
	failed := 0
	if dir != "" {
		problems := config.CheckLibrary(dir)
		for _, p := range problems {
			fmt.Fprintf(out, "library  FAIL  %v\n", p)
		}
		if len(problems) == 0 {
			fmt.Fprintf(out, "library  ok    %s\n", dir)
		}
		failed += len(problems)
	}

	for _, res := range probeAll(ctx, client, urls, concurrent) {
		if res.OK {
			fmt.Fprintf(out, "server   ok    %s (%s)\n", res.Target, res.Latency.Round(time.Millisecond))
			continue
		}
		failed++
		fmt.Fprintf(out, "server   FAIL  %s: %v\n", res.Target, res.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// probeAll keeps result order aligned with urls.
func probeAll(ctx context.Context, client *http.Client, urls []string, concurrent int) []probeResult {
	if concurrent <= 0 {
		concurrent = 1
	}
	results := make([]probeResult, len(urls))
	sem := make(chan struct{}, concurrent)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, base string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = probe(ctx, client, base)
		}(i, u)
	}
	wg.Wait()
	return results
}

func probe(ctx context.Context, client *http.Client, base string) probeResult {
	target := strings.TrimRight(base, "/") + "/health"
	res := probeResult{Target: target}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Err = err
		return res
	}
	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = errors.New(resp.Status)
		return res
	}
	res.OK = true
	return res
}
