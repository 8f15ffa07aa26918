package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"catalog-service/internal/jobs"
	"catalog-service/internal/models"
	"catalog-service/internal/report"
	"catalog-service/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	submitFile           string
	submitSeller         int64
	submitKind           string
	submitAttributeSetID uint
	submitActor          string
	submitEnqueue        bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Upload a local CSV or XLSX file as a new import run and process it",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := models.ImportKind(submitKind)
		if !kind.Valid() {
			return fmt.Errorf("unknown kind %q, expected one of %v", submitKind, models.ImportKinds())
		}
		if submitSeller <= 0 {
			return fmt.Errorf("--seller must be a positive seller id")
		}

		ext := strings.ToLower(filepath.Ext(submitFile))
		var format models.ImportFormat
		contentType := "text/csv"
		switch ext {
		case ".csv":
			format = models.ImportFormatCSV
		case ".xlsx":
			format = models.ImportFormatXLSX
			contentType = report.ContentTypeXLSX
		default:
			return fmt.Errorf("unsupported file extension %q, use .csv or .xlsx", ext)
		}

		ctx := cmd.Context()
		env, err := newEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		file, err := os.Open(submitFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", submitFile, err)
		}
		defer file.Close()

		run := &models.ImportRun{
			ID:             uuid.New(),
			SellerID:       submitSeller,
			Type:           kind,
			AttributeSetID: submitAttributeSetID,
			FileFormat:     format,
			Status:         models.ImportStatusNew,
			CreatedBy:      submitActor,
		}
		run.FilePath = storage.UploadKey(run.SellerID, run.ID, ext)

		if err := env.pipeline.Files.Save(ctx, run.FilePath, file, contentType); err != nil {
			return fmt.Errorf("failed to store file: %w", err)
		}
		if err := env.pipeline.Imports.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to create import run: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created import run %s\n", run.ID)

		if submitEnqueue {
			if env.redis == nil {
				return fmt.Errorf("redis is required to queue run %s", run.ID)
			}
			if err := jobs.NewImportQueue(env.redis, env.cfg.ImportQueueKey).Enqueue(ctx, run.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queued for the import worker")
			return nil
		}

		summary, err := env.orchestrator().Run(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("import run %s failed: %w", run.ID, err)
		}
		printSummary(cmd, summary)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "CSV or XLSX file path (required)")
	submitCmd.Flags().Int64Var(&submitSeller, "seller", 0, "Seller id owning the imported products (required)")
	submitCmd.Flags().StringVarP(&submitKind, "kind", "k", string(models.ImportKindCreateFull), "Import kind")
	submitCmd.Flags().UintVar(&submitAttributeSetID, "attribute-set", 0, "Attribute set id (required)")
	submitCmd.Flags().StringVar(&submitActor, "actor", "importctl", "Recorded as the run creator")
	submitCmd.Flags().BoolVar(&submitEnqueue, "enqueue", false, "Queue the run for the service instead of processing it here")
	_ = submitCmd.MarkFlagRequired("file")
	_ = submitCmd.MarkFlagRequired("seller")
	_ = submitCmd.MarkFlagRequired("attribute-set")
	rootCmd.AddCommand(submitCmd)
}
