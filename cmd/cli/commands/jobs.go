package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/services"
	"github.com/elecmate/rams/pkg/api/v1/client"
)

// defaultWatchInterval is how often watch polls the job
const defaultWatchInterval = 2 * time.Second

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID          string           `json:"id"`
	Status      models.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"current_step,omitempty"`
	Error       string           `json:"error,omitempty"`
	CacheHit    bool             `json:"cache_hit,omitempty"`
}

// jobListOutput represents the filtered output for a list of jobs
type jobListOutput struct {
	Jobs []jobOutput `json:"jobs"`
}

func newJobOutput(job models.GenerationJob) jobOutput {
	return jobOutput{
		ID:          job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.ErrorMessage,
		CacheHit:    job.CacheHit,
	}
}

func init() {
	jobsCmd.AddCommand(submitJobCmd)
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(runJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(watchJobCmd)

	submitJobCmd.Flags().StringP("description", "d", "", "Description of the electrical work")
	submitJobCmd.Flags().StringP("work-type", "w", "", "Work type: domestic, commercial or industrial")
	submitJobCmd.Flags().StringP("job-scale", "j", "", "Job scale: small, medium or large")
	submitJobCmd.Flags().String("project-name", "", "Project name")
	submitJobCmd.Flags().String("location", "", "Site location")
	submitJobCmd.Flags().String("contractor", "", "Contractor name")
	submitJobCmd.Flags().String("supervisor", "", "Supervisor name")
	submitJobCmd.Flags().String("assessor", "", "Assessor name")
	submitJobCmd.Flags().Bool("run", false, "Run the job right after submitting it")
	_ = submitJobCmd.MarkFlagRequired("description")

	listJobsCmd.Flags().IntP("page", "p", 1, "Page of results to return")
	listJobsCmd.Flags().StringP("status", "t", "", "Filter jobs by status")

	getJobCmd.Flags().StringP("id", "i", "", "Job ID to fetch")
	getJobCmd.Flags().Bool("full", false, "Print the whole job including generated documents")
	_ = getJobCmd.MarkFlagRequired("id")

	runJobCmd.Flags().StringP("id", "i", "", "Job ID to run")
	_ = runJobCmd.MarkFlagRequired("id")

	cancelJobCmd.Flags().StringP("id", "i", "", "Job ID to cancel")
	_ = cancelJobCmd.MarkFlagRequired("id")

	watchJobCmd.Flags().StringP("id", "i", "", "Job ID to watch")
	watchJobCmd.Flags().Duration("interval", defaultWatchInterval, "Polling interval")
	_ = watchJobCmd.MarkFlagRequired("id")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage RAMS generation jobs",
}

var submitJobCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new generation job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		description, _ := flags.GetString("description")
		workType, _ := flags.GetString("work-type")
		jobScale, _ := flags.GetString("job-scale")
		projectName, _ := flags.GetString("project-name")
		location, _ := flags.GetString("location")
		contractor, _ := flags.GetString("contractor")
		supervisor, _ := flags.GetString("supervisor")
		assessor, _ := flags.GetString("assessor")
		run, _ := flags.GetBool("run")

		created, err := apiClient.SubmitJob(cmd.Context(), services.SubmitRequest{
			JobDescription: description,
			WorkType:       workType,
			JobScale:       jobScale,
			ProjectInfo: models.ProjectInfo{
				ProjectName: projectName,
				Location:    location,
				Contractor:  contractor,
				Supervisor:  supervisor,
				Assessor:    assessor,
			},
		})
		if err != nil {
			return fmt.Errorf("error submitting job: %w", err)
		}
		if !run {
			return printJSON(cmd, created)
		}

		resp, err := apiClient.RunJob(cmd.Context(), created.ID)
		if err != nil {
			return fmt.Errorf("error running job %s: %w", created.ID, err)
		}
		return printJSON(cmd, resp)
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		page, _ := cmd.Flags().GetInt("page")
		status, _ := cmd.Flags().GetString("status")
		if status != "" {
			if _, err := models.ParseJobStatus(status); err != nil {
				return err
			}
		}

		response, err := apiClient.ListJobs(cmd.Context(), &client.ListJobsOptions{Page: page, Status: status})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := jobListOutput{Jobs: make([]jobOutput, len(response.Jobs))}
		for i, job := range response.Jobs {
			output.Jobs[i] = newJobOutput(job)
		}
		return printJSON(cmd, output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a specific job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")
		full, _ := cmd.Flags().GetBool("full")

		job, err := apiClient.GetJob(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		if full {
			return printJSON(cmd, job)
		}
		return printJSON(cmd, newJobOutput(job))
	},
}

var runJobCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a pending job and wait for the outcome",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")

		resp, err := apiClient.RunJob(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("error running job: %w", err)
		}
		return printJSON(cmd, resp)
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a job that has not finished",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")

		job, err := apiClient.CancelJob(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("error cancelling job: %w", err)
		}
		return printJSON(cmd, newJobOutput(job))
	},
}

var watchJobCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a job's progress until it finishes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = defaultWatchInterval
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Waiting"),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
		)

		ctx := cmd.Context()
		for {
			job, err := apiClient.GetJob(ctx, jobID)
			if err != nil {
				return fmt.Errorf("error fetching job: %w", err)
			}

			if job.CurrentStep != "" {
				bar.Describe(job.CurrentStep)
			}
			_ = bar.Set(job.Progress)

			if job.Status.IsTerminal() {
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
				if err := printJSON(cmd, newJobOutput(job)); err != nil {
					return err
				}
				if job.Status == models.JobStatusFailed {
					return fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
				}
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	},
}

// printJSON pretty prints v to the command output
func printJSON(cmd *cobra.Command, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(prettyJSON))
	return nil
}

// GetJobsCmd returns the jobs command
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}
