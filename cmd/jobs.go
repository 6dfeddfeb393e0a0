package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/import-engine/internal/model"
	"github.com/sells-group/import-engine/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect import jobs",
	Long:  "Commands for listing import jobs and viewing their state and errors.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Stage: model.Stage(stage),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the full state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs errors --

var jobsErrorsCmd = &cobra.Command{
	Use:   "errors <job-id>",
	Short: "List the recorded errors of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs errors")
		}

		if len(job.Errors) == 0 {
			fmt.Fprintln(os.Stderr, "No errors recorded.")
			return nil
		}

		formatJobErrors(os.Stdout, job.Errors)
		return nil
	},
}

func formatJobsList(w io.Writer, jobs []model.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tBATCH\tROWS\tEVENTS\tERRORS\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%d\t%d\t%s\n",
			j.ID,
			j.Stage,
			j.Batch,
			j.RowsProcessed, j.TotalRows,
			j.EventsCreated,
			len(j.Errors),
			j.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatJobErrors(w io.Writer, errs []model.ImportError) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tBATCH\tROW\tMESSAGE\tAT")
	for _, e := range errs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			e.Stage, e.Batch, e.Row, e.Message,
			e.OccurredAt.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	jobsListCmd.Flags().String("stage", "", "filter by stage")
	jobsListCmd.Flags().Int("limit", 50, "maximum jobs to list")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsErrorsCmd)
	rootCmd.AddCommand(jobsCmd)
}
