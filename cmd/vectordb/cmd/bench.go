package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iwinterknight/vectordb/internal/vectordb/api"
)

func newBenchCmd() *cobra.Command {
	var (
		addr       string
		libraryID  string
		k          int
		requests   int
		concurrent int
		dim        int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test a running server's search endpoint",
		Long: `Fire a fixed number of search requests at a running server's
/libraries/{id}/search endpoint, fanning them out across a worker pool,
and report latency percentiles.

Requires a server already running (see 'vectordb serve') with at least
one library and some indexed chunks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if libraryID == "" {
				return fmt.Errorf("--library is required")
			}
			return runBench(cmd.Context(), benchOptions{
				addr:       addr,
				libraryID:  libraryID,
				k:          k,
				requests:   requests,
				concurrent: concurrent,
				dim:        dim,
			}, cmd)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the running server")
	cmd.Flags().StringVar(&libraryID, "library", "", "Library UUID to search against")
	cmd.Flags().IntVar(&k, "k", 10, "Number of results per query")
	cmd.Flags().IntVar(&requests, "requests", 100, "Total number of search requests to issue")
	cmd.Flags().IntVar(&concurrent, "concurrency", 8, "Number of concurrent workers")
	cmd.Flags().IntVar(&dim, "dim", 384, "Dimensionality of the random query embeddings")

	return cmd
}

type benchOptions struct {
	addr       string
	libraryID  string
	k          int
	requests   int
	concurrent int
	dim        int
}

func runBench(ctx context.Context, opts benchOptions, cmd *cobra.Command) error {
	url := fmt.Sprintf("%s/libraries/%s/search", opts.addr, opts.libraryID)
	client := &http.Client{Timeout: 10 * time.Second}

	latencies := make([]time.Duration, opts.requests)
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.concurrent)

	for i := 0; i < opts.requests; i++ {
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()

			embedding := pseudoRandomEmbedding(opts.dim, i)
			reqBody := api.SearchRequest{
				QueryEmbedding: embedding,
				K:              opts.k,
			}
			body, err := json.Marshal(reqBody)
			if err != nil {
				return err
			}

			start := time.Now()
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				failures++
				return nil
			}
			_ = resp.Body.Close()
			latencies[i] = time.Since(start)
			if resp.StatusCode >= 400 {
				failures++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bench run failed: %w", err)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "requests: %d, concurrency: %d, failures: %d\n", opts.requests, opts.concurrent, failures)
	fmt.Fprintf(out, "p50: %s\n", percentile(latencies, 0.50))
	fmt.Fprintf(out, "p90: %s\n", percentile(latencies, 0.90))
	fmt.Fprintf(out, "p99: %s\n", percentile(latencies, 0.99))
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// pseudoRandomEmbedding derives a deterministic, seed-varied embedding so
// repeated bench runs are reproducible without depending on math/rand's
// global state.
func pseudoRandomEmbedding(dim, seed int) []float32 {
	v := make([]float32, dim)
	state := uint32(seed*2654435761 + 1)
	for i := range v {
		state = state*1664525 + 1013904223
		v[i] = float32(state%2000)/1000.0 - 1.0
	}
	return v
}
