package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/healthsync/internal/platform"
)

var flagAllClients bool

func newDatasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the account's datasets for the configured client",
		RunE:  runDatasets,
	}

	cmd.Flags().BoolVar(&flagAllClients, "all", false, "list datasets of every client, not just the configured one")

	return cmd
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Find or create the dataset uploads go to",
		RunE:  runResolve,
	}
}

// datasetOutput is the JSON schema for one dataset in `datasets --json`
// and `resolve --json`.
type datasetOutput struct {
	UploadID      string `json:"upload_id"`
	ClientName    string `json:"client_name"`
	ClientVersion string `json:"client_version"`
	DataSetType   string `json:"data_set_type"`
	Deduplicator  string `json:"deduplicator"`
	CreatedTime   string `json:"created_time,omitempty"`
}

func toDatasetOutput(d platform.Dataset) datasetOutput {
	out := datasetOutput{
		UploadID:      d.UploadID,
		ClientName:    d.ClientName,
		ClientVersion: d.ClientVersion,
		DataSetType:   string(d.DataSetType),
		Deduplicator:  d.Deduplicator.String(),
	}

	if !d.CreatedTime.IsZero() {
		out.CreatedTime = d.CreatedTime.UTC().Format("2006-01-02T15:04:05Z")
	}

	return out
}

func runDatasets(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, err := svc.Restore()
	if err != nil {
		return err
	}

	clientName := resolvedCfg.Client.Name
	if flagAllClients {
		clientName = ""
	}

	// The server answers 404 rather than an empty list.
	datasets, err := svc.Datasets.List(ctx, sess, clientName)
	if err != nil && !errors.Is(err, platform.ErrDataNotFound) {
		return err
	}

	if flagJSON {
		out := make([]datasetOutput, 0, len(datasets))
		for _, d := range datasets {
			out = append(out, toDatasetOutput(d))
		}

		return printJSON(cmd.OutOrStdout(), out)
	}

	if len(datasets) == 0 {
		statusf("No datasets.\n")
		return nil
	}

	printDatasetTable(cmd.OutOrStdout(), datasets, resolvedCfg.Dataset())

	return nil
}

// printDatasetTable marks with '*' the datasets the configured client would
// resolve to.
func printDatasetTable(w io.Writer, datasets []platform.Dataset, wanted platform.Dataset) {
	rows := make([][]string, 0, len(datasets))

	for _, d := range datasets {
		mark := ""
		if d.Matches(wanted) {
			mark = "*"
		}

		rows = append(rows, []string{
			mark,
			d.UploadID,
			d.ClientName,
			d.ClientVersion,
			string(d.DataSetType),
			d.Deduplicator.String(),
			formatTime(d.CreatedTime),
		})
	}

	printTable(w, []string{"", "UPLOAD ID", "CLIENT", "VERSION", "TYPE", "DEDUPLICATOR", "CREATED"}, rows)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	svc, err := NewService(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	_, ds, err := svc.ResolveDataset(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), toDatasetOutput(ds))
	}

	printDatasetTable(cmd.OutOrStdout(), []platform.Dataset{ds}, resolvedCfg.Dataset())

	return nil
}
