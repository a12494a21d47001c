package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

var (
	submitBrand       string
	submitAliases     []string
	submitCompetitors []string
	submitUser        string
	submitSector      string
	submitWebsite     string

	processBatch     string
	processSingle    bool
	processFinalOnly bool

	retryBatch string
	retryRun   bool

	statusJSON bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a pending questionnaire",
	RunE:  runSubmit,
}

var processCmd = &cobra.Command{
	Use:   "process <questionnaire-id>",
	Short: "Process a questionnaire in this process",
	Long: `Process a questionnaire synchronously.

Without flags every remaining batch is processed and the final report
generated. --batch or --single processes one batch, --final-only only
generates the report.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var retryCmd = &cobra.Command{
	Use:   "retry <questionnaire-id>",
	Short: "Reset a failed questionnaire (and optionally one batch) to pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var statusCmd = &cobra.Command{
	Use:   "status <questionnaire-id>",
	Short: "Show questionnaire and batch status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	submitCmd.Flags().StringVar(&submitBrand, "brand", "", "Brand name")
	submitCmd.Flags().StringSliceVar(&submitAliases, "alias", nil, "Brand alias (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitCompetitors, "competitor", nil, "Competitor name (repeatable)")
	submitCmd.Flags().StringVar(&submitUser, "user", "", "Owner user id (default: random)")
	submitCmd.Flags().StringVar(&submitSector, "sector", "", "Business sector")
	submitCmd.Flags().StringVar(&submitWebsite, "website", "", "Brand website")
	_ = submitCmd.MarkFlagRequired("brand")

	processCmd.Flags().StringVar(&processBatch, "batch", "", "Process only this batch")
	processCmd.Flags().BoolVar(&processSingle, "single", false, "Process only the next pending batch")
	processCmd.Flags().BoolVar(&processFinalOnly, "final-only", false, "Only generate the final report")

	retryCmd.Flags().StringVar(&retryBatch, "batch", "", "Also reset this batch")
	retryCmd.Flags().BoolVar(&retryRun, "run", false, "Process the questionnaire after resetting it")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	db, err := database.Connect(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsTable); err != nil {
		return err
	}
	version, dirty, err := db.MigrationVersion(cfg.Database.MigrationsTable)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
	return nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	userID := uuid.New()
	if submitUser != "" {
		id, err := uuid.Parse(submitUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		userID = id
	}

	return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
		q := &models.Questionnaire{
			UserID:      userID,
			BrandName:   submitBrand,
			Aliases:     submitAliases,
			Competitors: submitCompetitors,
			Sector:      models.StrPtr(submitSector),
			Website:     models.StrPtr(submitWebsite),
			Status:      models.JobPending,
		}
		if err := svc.Repos.QuestionnaireRepo.Create(ctx, q); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), q.ID)
		return nil
	})
}

func runProcess(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid questionnaire id: %w", err)
	}
	req := services.ProcessRequest{
		QuestionnaireID:         id,
		ProcessSingleBatch:      processSingle,
		GenerateFinalReportOnly: processFinalOnly,
	}
	if processBatch != "" {
		batchID, err := uuid.Parse(processBatch)
		if err != nil {
			return fmt.Errorf("invalid --batch: %w", err)
		}
		req.BatchID = &batchID
	}

	return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
		report, err := svc.Pipeline.Process(ctx, req)
		if err != nil {
			return err
		}
		return printOutcome(ctx, cmd, svc, id, report)
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid questionnaire id: %w", err)
	}
	var batchID *uuid.UUID
	if retryBatch != "" {
		parsed, err := uuid.Parse(retryBatch)
		if err != nil {
			return fmt.Errorf("invalid --batch: %w", err)
		}
		batchID = &parsed
	}

	return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
		q, err := svc.Status.Retry(ctx, id, batchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "questionnaire %s reset to %s\n", q.ID, q.Status)
		if !retryRun {
			return nil
		}

		report, err := svc.Pipeline.Process(ctx, services.ProcessRequest{QuestionnaireID: id, BatchID: batchID})
		if err != nil {
			return err
		}
		return printOutcome(ctx, cmd, svc, id, report)
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid questionnaire id: %w", err)
	}

	return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
		q, err := svc.Repos.QuestionnaireRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		batches, err := svc.Repos.BatchRepo.ListByQuestionnaire(ctx, id)
		if err != nil {
			return err
		}
		report, err := svc.Repos.FinalReportRepo.GetByQuestionnaire(ctx, id)
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"questionnaire": q, "batches": batches, "final_report": report})
		}

		fmt.Fprintf(out, "%s  %s  %s  %d%%\n", q.ID, q.BrandName, q.Status, q.ProgressPercent)
		if q.ErrorMessage != nil {
			fmt.Fprintf(out, "error: %s\n", *q.ErrorMessage)
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BATCH\tSTATUS\tQUESTIONS\tERROR")
		for _, b := range batches {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", b.BatchNumber, b.Status, len(b.Questions), derefString(b.ErrorMessage))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if report != nil && report.ArtifactURL != nil {
			fmt.Fprintf(out, "report: %s (%d tokens, €%.4f)\n", *report.ArtifactURL, report.TotalTokens, report.CostEUR)
		}
		return nil
	})
}

// printOutcome reports a finished report or the questionnaire state when
// processing stopped short of one.
func printOutcome(ctx context.Context, cmd *cobra.Command, svc *services.Services, id uuid.UUID, report *models.FinalReport) error {
	out := cmd.OutOrStdout()
	if report != nil && report.ArtifactURL != nil {
		fmt.Fprintf(out, "report ready: %s\n", *report.ArtifactURL)
		return nil
	}
	q, err := svc.Repos.QuestionnaireRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "questionnaire %s is %s (%d%%)\n", q.ID, q.Status, q.ProgressPercent)
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
