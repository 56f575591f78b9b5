package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/repository"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List archived jobs (needs DB_URL or ARCHIVE_SQLITE)",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Write exports for an archived job",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var jobsLimit int

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum number of jobs to list")
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(exportCmd)
}

func openArchive(cmd *cobra.Command) (*repository.Store, error) {
	store, err := repository.Open(cmd.Context(), repository.Config{
		DSN:         cfg.Database.DSN,
		SQLitePath:  cfg.Database.SQLitePath,
		MaxConns:    2,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runJobs(cmd *cobra.Command, _ []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListJobs(cmd.Context(), jobsLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tFILE\tSTATE\tPAGES\tRECORDS\tSUBMITTED")
	for _, j := range list {
		state := string(j.State)
		if j.Reason != "" {
			state += " (" + j.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			j.ID, j.Document.Filename, state, j.Document.PageCount,
			j.Progress.EntitiesValidated, j.SubmittedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("job id must be a UUID: %w", err)
	}
	formats, err := parseFormats(formatList)
	if err != nil {
		return err
	}
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.GetJob(cmd.Context(), id)
	if err != nil {
		return err
	}
	if job.State != constants.JobCompleted {
		return fmt.Errorf("job %s is %s, nothing to export", id, job.State)
	}
	records, err := store.ListRecords(cmd.Context(), id)
	if err != nil {
		return err
	}
	rs := entity.ResultSet{
		JobID:       job.ID,
		DocumentID:  job.Document.ID,
		Filename:    job.Document.Filename,
		Records:     records,
		CoverageGap: job.CoverageGap,
	}
	paths, err := export.NewService(logger).WriteFiles(cfg.OutputDir, rs, export.MetadataFrom(job), formats...)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
	}
	return nil
}
