// Command pagedump saves the raw HTML of the quote pages, for building test
// fixtures and checking the selectors after a site redesign.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dolarprovider/internal/config"
	"dolarprovider/internal/httpx"
	"dolarprovider/internal/logging"
	"dolarprovider/internal/quote"
	"dolarprovider/internal/quote/cronista"
	"dolarprovider/internal/quote/ratelimit"
)

// pageFetcher is satisfied by *cronista.Client.
type pageFetcher interface {
	PageURL(code string) string
	FetchPage(ctx context.Context, code string) ([]byte, error)
}

type entry struct {
	Dollar string `json:"dollar"`
	Code   string `json:"code"`
	URL    string `json:"url"`
	File   string `json:"file,omitempty"`
	Bytes  int    `json:"bytes"`
	Error  string `json:"error,omitempty"`
}

type dumper struct {
	pages       pageFetcher
	dir         string
	concurrency int
	limiter     *ratelimit.TokenBucket
	logger      *zap.Logger
}

// dump downloads every kind into d.dir and returns one manifest entry per
// kind in input order. Failures are recorded in the entry.
func (d *dumper) dump(ctx context.Context, kinds []quote.Kind) []entry {
	out := make([]entry, len(kinds))
	type job struct {
		idx  int
		kind quote.Kind
	}
	n := d.concurrency
	if n <= 0 {
		n = 1
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.idx] = d.one(ctx, j.kind)
			}
		}()
	}
	for i, k := range kinds {
		jobs <- job{idx: i, kind: k}
	}
	close(jobs)
	wg.Wait()
	return out
}

func (d *dumper) one(ctx context.Context, k quote.Kind) entry {
	e := entry{Dollar: k.Label, Code: k.Code, URL: d.pages.PageURL(k.Code)}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, 1); err != nil {
			e.Error = err.Error()
			return e
		}
	}
	body, err := d.pages.FetchPage(ctx, k.Code)
	if err != nil {
		d.logger.Warn("page fetch failed", zap.String("code", k.Code), zap.Error(err))
		e.Error = err.Error()
		return e
	}
	name := k.Code + ".html"
	if err := os.WriteFile(filepath.Join(d.dir, name), body, 0o644); err != nil {
		e.Error = fmt.Sprintf("write page: %v", err)
		return e
	}
	e.File = name
	e.Bytes = len(body)
	d.logger.Info("saved page", zap.String("code", k.Code), zap.Int("bytes", len(body)))
	return e
}

func writeManifest(dir string, entries []entry) error {
	b, err := json.MarshalIndent(struct {
		SavedAt time.Time `json:"saved_at"`
		Pages   []entry   `json:"pages"`
	}{time.Now().UTC(), entries}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0o644)
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		outDir      string
		concurrency int
		timeoutSec  int
		retries     int
		rpm         int
	)
	cmd := &cobra.Command{
		Use:          "pagedump [dollar...]",
		Short:        "Save the raw quote pages (all dollars when none given)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := quote.ParseKinds(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := logging.New(cfg.Log.Level, true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create out dir: %w", err)
			}
			hc := httpx.New(time.Duration(timeoutSec) * time.Second)
			defer hc.CloseIdle()

			d := &dumper{
				pages: cronista.NewClient(
					cronista.WithBaseURL(cfg.Cronista.BaseURL),
					cronista.WithHTTPClient(hc),
					cronista.WithUserAgent(cfg.Cronista.UserAgent),
					cronista.WithRetries(retries, 0),
					cronista.WithLogger(logger),
				),
				dir:         outDir,
				concurrency: concurrency,
				logger:      logger,
			}
			if rpm > 0 {
				d.limiter = ratelimit.PerMinute(rpm, 1)
			}

			entries := d.dump(cmd.Context(), kinds)
			if err := writeManifest(outDir, entries); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			failed := 0
			for _, e := range entries {
				if e.Error != "" {
					failed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d/%d pages to %s\n", len(entries)-failed, len(entries), outDir)
			if failed == len(entries) {
				return fmt.Errorf("all %d pages failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file (optional)")
	cmd.Flags().StringVar(&outDir, "out", "pages", "output directory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of parallel downloads")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 20, "HTTP timeout seconds")
	cmd.Flags().IntVar(&retries, "retries", 3, "max retries on 429/5xx")
	cmd.Flags().IntVar(&rpm, "rpm", 0, "max requests per minute (0 = unlimited)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
