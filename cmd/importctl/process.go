package main

import (
	"errors"
	"fmt"

	"catalog-service/internal/importer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <import-id>",
	Short: "Process an existing import run that is still new",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid import id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		env, err := newEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		summary, err := env.orchestrator().Run(ctx, id)
		if errors.Is(err, importer.ErrRunNotClaimable) {
			return fmt.Errorf("import run %s is not new; it was already processed or is running elsewhere", id)
		}
		if err != nil {
			return fmt.Errorf("import run %s failed: %w", id, err)
		}
		printSummary(cmd, summary)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <import-id>",
	Short: "Render the report of a finished run again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid import id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		env, err := newEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		if err := env.pipeline.Attacher.Finalize(ctx, id); err != nil {
			return err
		}
		run, err := env.pipeline.Imports.GetRunByID(ctx, id)
		if err != nil {
			return err
		}
		if run.ReportPath != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Report stored at %s\n", *run.ReportPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reportCmd)
}
