package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/geoextract/internal/core"
	"github.com/joseph-ayodele/geoextract/internal/ingest"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Watch directories and process reports as they arrive",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

var (
	watchInitial  bool
	watchDebounce time.Duration
)

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", true, "process files already present")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is picked up")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	formats, err := parseFormats(formatList)
	if err != nil {
		return err
	}
	jc, err := jobConfig(cfg.Defaults, jobFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := core.Open(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close(context.Background()) }()

	out := cmd.OutOrStdout()
	var mu sync.Mutex // serializes writes to out
	var wg sync.WaitGroup
	defer wg.Wait()

	ing := ingest.NewFSIngestor(stack.Jobs, jc, logger)
	fmt.Fprintf(out, "watching %v, output in %s\n", args, cfg.OutputDir)

	err = ing.Watch(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitial,
		SkipHidden:  true,
		Debounce:    watchDebounce,
	}, func(r ingest.IngestionResult, err error) {
		if err != nil || r.Deduplicated {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			_ = exportJob(ctx, stack, r.JobID, formats, &buf)
			mu.Lock()
			_, _ = out.Write(buf.Bytes())
			mu.Unlock()
		}()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
