package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/healthsync/internal/config"
	"github.com/tonimelisma/healthsync/internal/platform"
	"github.com/tonimelisma/healthsync/internal/record"
)

// errPartialUpload reports that every batch was sent but the server refused
// some records.
var errPartialUpload = errors.New("some records were rejected by the server")

var flagStampedOutput string

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file.json>",
		Short: "Upload a JSON array of records to the client's dataset",
		Long: `Upload a JSON array of records to the client's dataset.

Records without an origin id get a generated one so they can be deleted
later; use --stamped-output to keep a copy of the records with those ids.
Pass "-" to read the records from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().StringVarP(&flagStampedOutput, "stamped-output", "o", "",
		"write the records, with generated origin ids, to this file before uploading")

	return cmd
}

// batchUploader is the slice of platform.Pipeline the batch fan-out uses.
type batchUploader interface {
	Upload(ctx context.Context, records []record.Record, ds platform.Dataset, sess *platform.Session) error
}

// uploadSummary is the JSON schema for `upload --json`.
type uploadSummary struct {
	UploadID string `json:"upload_id"`
	Records  int    `json:"records"`
	Batches  int    `json:"batches"`
	Uploaded int    `json:"uploaded"`
	Rejected int    `json:"rejected"`
	Unsent   int    `json:"unsent"`
	Stamped  int    `json:"origins_assigned"`
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	records, err := readRecords(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	stamped := stampOrigins(records, resolvedCfg.Client)
	logger.Debug("records loaded", slog.Int("records", len(records)), slog.Int("origins_assigned", stamped))

	if flagStampedOutput != "" {
		if err := writeRecords(flagStampedOutput, records); err != nil {
			return err
		}
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

	// Long uploads keep the offline gate current.
	svc.Probe.SetNotifications(true)

	sum, err := uploadBatches(ctx, svc.Pipeline, records, ds, sess, resolvedCfg.Upload, logger)
	sum.UploadID = ds.UploadID
	sum.Stamped = stamped

	if flagJSON {
		if jerr := printJSON(cmd.OutOrStdout(), sum); jerr != nil {
			return jerr
		}
	} else {
		printUploadSummary(cmd.OutOrStdout(), sum)
	}

	if err != nil {
		return err
	}

	if sum.Rejected > 0 {
		return errPartialUpload
	}

	return nil
}

// readRecords decodes the JSON array at path, or on r when path is "-".
func readRecords(r io.Reader, path string) ([]record.Record, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	records, err := record.DecodeArray(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no records", path)
	}

	return records, nil
}

// stampOrigins gives every record lacking one an origin naming this client.
func stampOrigins(records []record.Record, client config.ClientConfig) int {
	n := 0

	for _, r := range records {
		if record.EnsureOrigin(r, client.Name, client.Version) {
			n++
		}
	}

	return n
}

// writeRecords saves records as an indented JSON array.
func writeRecords(path string, records []record.Record) error {
	var buf bytes.Buffer

	buf.WriteByte('[')

	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}

		data, err := record.Encode(r)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}

		buf.Write(data)
	}

	buf.WriteByte(']')

	if err := os.WriteFile(path, pretty.Pretty(buf.Bytes()), 0o644); err != nil {
		return fmt.Errorf("writing stamped records: %w", err)
	}

	return nil
}

// uploadBatches splits records into batches of cfg.BatchSize and sends up to
// cfg.ParallelBatches of them at once. The first batch that fails outright
// cancels the batches not yet started.
func uploadBatches(
	ctx context.Context,
	up batchUploader,
	records []record.Record,
	ds platform.Dataset,
	sess *platform.Session,
	cfg config.UploadConfig,
	logger *slog.Logger,
) (uploadSummary, error) {
	batches := platform.Chunk(records, cfg.BatchSize)

	var uploaded, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.ParallelBatches)

	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}

			sent, refused, err := uploadBatch(gctx, up, batch, ds, sess, cfg.RetryRejected)
			uploaded.Add(int64(sent))
			rejected.Add(int64(refused))

			if err != nil {
				logger.Error("batch failed",
					slog.Int("batch", i),
					slog.Int("records", len(batch)),
					slog.String("error", err.Error()),
				)

				return fmt.Errorf("batch %d: %w", i, err)
			}

			logger.Debug("batch done",
				slog.Int("batch", i),
				slog.Int("uploaded", sent),
				slog.Int("rejected", refused),
			)

			return nil
		})
	}

	err := g.Wait()

	sum := uploadSummary{
		Records:  len(records),
		Batches:  len(batches),
		Uploaded: int(uploaded.Load()),
		Rejected: int(rejected.Load()),
	}
	sum.Unsent = sum.Records - sum.Uploaded - sum.Rejected

	if err == nil {
		// Interrupted before some batches started.
		err = ctx.Err()
	}

	return sum, err
}

// uploadBatch sends one batch. When the server refuses specific items and
// retry is on, the batch is resent once without them.
func uploadBatch(
	ctx context.Context,
	up batchUploader,
	batch []record.Record,
	ds platform.Dataset,
	sess *platform.Session,
	retry bool,
) (sent, refused int, err error) {
	err = up.Upload(ctx, batch, ds, sess)
	if err == nil {
		return len(batch), 0, nil
	}

	indices := platform.RejectedIndices(err)
	if !retry || len(indices) == 0 {
		return 0, 0, err
	}

	rest := platform.Without(batch, indices)
	refused = len(batch) - len(rest)

	if len(rest) == 0 {
		return 0, refused, nil
	}

	if err := up.Upload(ctx, rest, ds, sess); err != nil {
		return 0, refused, err
	}

	return len(rest), refused, nil
}

func printUploadSummary(w io.Writer, sum uploadSummary) {
	fmt.Fprintf(w, "Dataset:  %s\n", sum.UploadID)
	fmt.Fprintf(w, "Records:  %d in %d batches\n", sum.Records, sum.Batches)
	fmt.Fprintf(w, "Uploaded: %d\n", sum.Uploaded)

	if sum.Rejected > 0 {
		fmt.Fprintf(w, "Rejected: %d\n", sum.Rejected)
	}

	if sum.Unsent > 0 {
		fmt.Fprintf(w, "Unsent:   %d\n", sum.Unsent)
	}

	if sum.Stamped > 0 {
		fmt.Fprintf(w, "Origin ids assigned: %d\n", sum.Stamped)
	}
}
