package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/queue"
	"github.com/inkwell-scan/inkwell/internal/service"
)

var (
	convertModel  string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <document.pdf>",
	Short: "Convert a scanned document in one shot",
	Long: `Convert a scanned document using an in-process queue and wait for
the result.

Documents whose transcription declares placeholder regions stop at
awaiting_segmentation; declare segmentations through the service API and
trigger compilation from there. Documents without placeholders compile
straight through and the final PDF is written to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		local, err := queue.NewLocal(queue.LocalConfig{
			Handler: a.handler,
			Workers: 1,
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		local.Start(ctx)
		defer local.Wait()

		svc := a.service(local)

		job, err := svc.CreateJob(ctx, filepath.Base(args[0]), source, convertModel)
		if err != nil {
			return err
		}
		fmt.Printf("job %s created\n", job.ID)

		status, err := waitForJob(cmd, svc, job.ID, func(s conversion.Status) bool {
			return s.Terminal() || s == conversion.StatusAwaitingSegmentation ||
				s == conversion.StatusSegmentationComplete
		})
		if err != nil {
			return err
		}

		switch status {
		case conversion.StatusAwaitingSegmentation:
			tasks, err := svc.PlaceholderTasks(ctx, job.ID)
			if err != nil {
				return err
			}
			fmt.Printf("job %s awaits segmentation of %d region(s):\n", job.ID, len(tasks))
			for _, t := range tasks {
				fmt.Printf("  %s: %s\n", t.Placeholder, t.Description)
			}
			return nil

		case conversion.StatusSegmentationComplete:
			if err := svc.TriggerCompile(ctx, job.ID); err != nil {
				return err
			}
			status, err = waitForJob(cmd, svc, job.ID, conversion.Status.Terminal)
			if err != nil {
				return err
			}
		}

		if status == conversion.StatusFailed {
			_, msg, _ := svc.Status(ctx, job.ID)
			return fmt.Errorf("job failed: %s", msg)
		}

		pdf, err := svc.Render(ctx, job.ID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(convertOutput, pdf, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", convertOutput, len(pdf))
		return nil
	},
}

// waitForJob polls job status until done reports true or the context ends.
func waitForJob(cmd *cobra.Command, svc *service.JobService, id uuid.UUID, done func(conversion.Status) bool) (conversion.Status, error) {
	ctx := cmd.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, _, err := svc.Status(ctx, id)
		if err != nil {
			return "", err
		}
		if done(status) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	convertCmd.Flags().StringVar(&convertModel, "model", "", "transcription model (default from config)")
	convertCmd.Flags().StringVar(&convertOutput, "output", "output.pdf", "path for the final PDF")

	rootCmd.AddCommand(convertCmd)
}
