// Command etlctl drives the ETL backend from a terminal: health checks,
// listings, and processing a sheet while polling it to completion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/transport/backendapi"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "etlctl",
		Usage: "inspect and drive the ETL backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "ETL backend base URL",
				EnvVars:  []string{"ETL_API_BASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token sent to the backend",
				EnvVars: []string{"ETL_API_TOKEN"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "per-request timeout, 0 for none",
				EnvVars: []string{"ETL_API_TIMEOUT"},
			},
		},
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "show backend health",
				Action: healthAction,
			},
			{
				Name:   "files",
				Usage:  "list uploaded files",
				Action: filesAction,
			},
			{
				Name:   "jobs",
				Usage:  "list ETL jobs",
				Action: jobsAction,
			},
			{
				Name:      "process",
				Usage:     "load one sheet and wait for the job to finish",
				ArgsUsage: "<file-id> <sheet-name>",
				Action:    processAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target-date",
						Usage: "YYYY-MM-DD, defaults to today",
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Usage: "time between status checks",
						Value: 2 * time.Second,
					},
					&cli.IntFlag{
						Name:  "poll-retries",
						Usage: "failed status checks tolerated in a row",
						Value: 3,
					},
				},
			},
			{
				Name:      "cancel",
				Usage:     "cancel a job",
				ArgsUsage: "<job-id>",
				Action:    cancelAction,
			},
			{
				Name:      "delete",
				Usage:     "hard-delete an uploaded file and its loaded data",
				ArgsUsage: "<file-id>",
				Action:    deleteAction,
			},
		},
	}
}

func client(c *cli.Context) *backendapi.ETLClient {
	return backendapi.NewETLClient(backendapi.Config{
		BaseURL:   c.String("url"),
		Token:     c.String("token"),
		Timeout:   c.Duration("timeout"),
		UserAgent: "etlctl",
	})
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func healthAction(c *cli.Context) error {
	health, err := client(c).Health(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("health failed: %v", err), 1)
	}
	return printJSON(c, health)
}

func filesAction(c *cli.Context) error {
	files, err := client(c).ListFiles(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load files failed: %v", err), 1)
	}
	return printJSON(c, files)
}

func jobsAction(c *cli.Context) error {
	jobs, err := client(c).ListJobs(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load jobs failed: %v", err), 1)
	}
	return printJSON(c, jobs)
}

func cancelAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: etlctl cancel <job-id>", 2)
	}
	if err := client(c).CancelJob(c.Context, c.Args().First()); err != nil {
		return cli.Exit(fmt.Sprintf("cancel failed: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "cancel requested for %s\n", c.Args().First())
	return nil
}

func deleteAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: etlctl delete <file-id>", 2)
	}
	result, err := client(c).DeleteFile(c.Context, c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("delete failed: %v", err), 1)
	}
	return printJSON(c, result)
}

// processAction runs the sheet through a FileManager so the CLI polls the
// job exactly like the dashboard does.
func processAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: etlctl process <file-id> <sheet-name>", 2)
	}
	fileID, sheetName := c.Args().Get(0), c.Args().Get(1)

	manager := service.NewFileManager(client(c), util.NewScheduler(), service.FileManagerConfig{
		OwnerID:          "etlctl",
		PollInitialDelay: c.Duration("poll-interval"),
		PollInterval:     c.Duration("poll-interval"),
		PollErrorRetries: c.Int("poll-retries"),
	})
	defer manager.Close()

	if err := manager.LoadFiles(c.Context); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	job, err := manager.ProcessSheet(c.Context, fileID, sheetName, c.String("target-date"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "job %s started\n", job.JobID)

	final, err := waitForJob(c.Context, manager, job.JobID, 250*time.Millisecond)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := printJSON(c, final); err != nil {
		return err
	}
	if final.Status != domain.JobStatusCompleted {
		return cli.Exit(fmt.Sprintf("job %s ended with status %s", final.JobID, final.Status), 1)
	}
	return nil
}

// waitForJob returns the last known job once its poll loop has stopped.
func waitForJob(ctx context.Context, manager *service.FileManager, jobID string, every time.Duration) (domain.ETLJob, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if !manager.IsMonitoring(jobID) {
			job, _ := manager.Job(jobID)
			if job.Status.IsActive() {
				return job, fmt.Errorf("lost track of job %s while %s", jobID, job.Status)
			}
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.ETLJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
