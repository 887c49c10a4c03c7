package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/healthsync/internal/platform"
	"github.com/tonimelisma/healthsync/internal/record"
)

var (
	flagDeleteIDs     []string
	flagDeleteOrigins []string
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [file.json]",
		Short: "Delete records from the client's dataset",
		Long: `Delete records from the client's dataset.

Records in the file are deleted by origin id when they carry one and by
record id otherwise. Individual ids can be given with --id and --origin-id.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDelete,
	}

	cmd.Flags().StringSliceVar(&flagDeleteIDs, "id", nil, "record id to delete (repeatable)")
	cmd.Flags().StringSliceVar(&flagDeleteOrigins, "origin-id", nil, "origin id to delete (repeatable)")

	return cmd
}

// deleteSummary is the JSON schema for `delete --json`.
type deleteSummary struct {
	UploadID string `json:"upload_id"`
	Items    int    `json:"items"`
	Deleted  int    `json:"deleted"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	var records []record.Record

	if len(args) == 1 {
		var err error

		records, err = readRecords(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
	}

	items, err := collectDeleteItems(records, flagDeleteIDs, flagDeleteOrigins)
	if err != nil {
		return err
	}

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, ds, err := svc.ResolveDataset(ctx)
	if err != nil {
		return err
	}

	sum := deleteSummary{UploadID: ds.UploadID, Items: len(items)}

	for i, batch := range platform.Chunk(items, resolvedCfg.Upload.BatchSize) {
		if err := svc.Pipeline.Delete(ctx, batch, ds, sess); err != nil {
			return fmt.Errorf("delete batch %d (after %d deleted): %w", i, sum.Deleted, err)
		}

		sum.Deleted += len(batch)
		logger.Debug("delete batch done", slog.Int("batch", i), slog.Int("items", len(batch)))
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), sum)
	}

	printDeleteSummary(cmd.OutOrStdout(), sum)

	return nil
}

// collectDeleteItems derives delete items from records, then appends the
// explicitly named ids.
func collectDeleteItems(records []record.Record, ids, originIDs []string) ([]platform.DeleteItem, error) {
	items := make([]platform.DeleteItem, 0, len(records)+len(ids)+len(originIDs))

	for i, r := range records {
		item, err := platform.DeleteItemFor(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		items = append(items, item)
	}

	for _, id := range ids {
		item, err := platform.NewDeleteItem(id)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	for _, id := range originIDs {
		item, err := platform.NewOriginDeleteItem(id)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, errors.New("nothing to delete; pass a records file, --id or --origin-id")
	}

	return items, nil
}

func printDeleteSummary(w io.Writer, sum deleteSummary) {
	fmt.Fprintf(w, "Dataset: %s\n", sum.UploadID)
	fmt.Fprintf(w, "Deleted: %d\n", sum.Deleted)
}
