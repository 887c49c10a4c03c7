package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n", r.ConfigPath)
	ew.printf("# Session file: %s\n\n", r.TokenPath)

	ew.printf("[server]\n")
	ew.printf("  environment    = %q\n", string(r.Environment))
	ew.printf("  base_url       = %q\n", r.Environment.BaseURL())
	ew.printf("  timeout        = %q\n", r.Timeout.String())
	ew.printf("  probe_interval = %q\n", r.ProbeInterval.String())
	ew.printf("\n")

	ew.printf("[client]\n")
	ew.printf("  name          = %q\n", r.Client.Name)
	ew.printf("  version       = %q\n", r.Client.Version)
	ew.printf("  data_set_type = %q\n", string(r.DataSetType))
	ew.printf("  deduplicator  = %q\n", r.Deduplicator.String())
	ew.printf("\n")

	ew.printf("[upload]\n")
	ew.printf("  batch_size       = %d\n", r.Upload.BatchSize)
	ew.printf("  parallel_batches = %d\n", r.Upload.ParallelBatches)
	ew.printf("  retry_rejected   = %t\n", r.Upload.RetryRejected)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
