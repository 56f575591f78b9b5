package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/core"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/ingest"
	"github.com/joseph-ayodele/geoextract/internal/validate"
)

var processCmd = &cobra.Command{
	Use:   "process <file-or-dir>...",
	Short: "Process reports and write exports",
	Long: `Submits every file (directories are walked recursively), waits for the
jobs to finish and writes one export per format and document into the output
directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

var includeHidden bool

func init() {
	processCmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also walk hidden files and directories")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
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
	ing := ingest.NewFSIngestor(stack.Jobs, jc, logger)

	var ids []uuid.UUID
	var failed int
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			fmt.Fprintf(out, "skip %s: %v\n", arg, err)
			failed++
			continue
		}
		var results []ingest.IngestionResult
		if fi.IsDir() {
			results, _, err = ing.IngestDirectory(ctx, arg, !includeHidden)
			if err != nil {
				return err
			}
		} else {
			r, err := ing.IngestPath(ctx, arg)
			if err != nil {
				r = ingest.IngestionResult{SourcePath: arg, Err: err.Error()}
			}
			results = []ingest.IngestionResult{r}
		}
		for _, r := range results {
			switch {
			case r.Err != "":
				fmt.Fprintf(out, "skip %s: %s\n", r.SourcePath, r.Err)
				failed++
			case r.Deduplicated:
				fmt.Fprintf(out, "skip %s: same content as job %s\n", r.SourcePath, r.JobID)
			default:
				ids = append(ids, r.JobID)
			}
		}
	}

	for _, id := range ids {
		if err := exportJob(ctx, stack, id, formats, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
		}
	}

	fmt.Fprintf(out, "processed %d document(s), %d failure(s), output in %s\n", len(ids), failed, cfg.OutputDir)
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

// exportJob waits for id to finish and writes its exports.
func exportJob(ctx context.Context, stack *core.Stack, id uuid.UUID, formats []export.Format, out io.Writer) error {
	job, err := stack.Jobs.Wait(ctx, id)
	if err != nil {
		return err
	}
	if job.State != constants.JobCompleted {
		fmt.Fprintf(out, "%s: %s (%s)\n", job.Document.Filename, job.State, job.Reason)
		return fmt.Errorf("job %s %s: %s", id, job.State, job.Reason)
	}
	rs, err := stack.Jobs.Results(id)
	if err != nil {
		return err
	}
	paths, err := stack.Exporter.WriteFiles(cfg.OutputDir, rs, export.MetadataFrom(job), formats...)
	if err != nil {
		fmt.Fprintf(out, "%s: export failed: %v\n", job.Document.Filename, err)
		return err
	}

	counts := validate.Count(rs.Records)
	fmt.Fprintf(out, "%s: %d page(s), %d accepted, %d flagged, %d rejected",
		job.Document.Filename, job.Document.PageCount,
		counts[constants.StatusAccepted], counts[constants.StatusFlagged], counts[constants.StatusRejected])
	if !rs.CoverageGap.Empty() {
		fmt.Fprintf(out, ", pages without coverage %v", rs.CoverageGap.Pages)
	}
	fmt.Fprintln(out)
	for _, p := range paths {
		fmt.Fprintf(out, "  wrote %s\n", p)
	}
	return nil
}
