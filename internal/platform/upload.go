package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonimelisma/healthsync/internal/record"
)

// DefaultMaxBatchSize is the largest batch the service accepts per request.
const DefaultMaxBatchSize = 1000

// Pipeline uploads and deletes batches of records in a resolved dataset.
// Every call is one background transfer tracked in the pipeline's
// TransferTable; nothing is retried.
type Pipeline struct {
	client *Client
	table  *TransferTable
	queue  *CompletionQueue
	logger *slog.Logger

	// MaxBatchSize caps items per request. Larger batches fail with
	// ErrInternal before any request is sent.
	MaxBatchSize int
}

// NewPipeline creates a pipeline. Asynchronous completions are delivered on
// queue; a nil queue delivers them on the transfer's own goroutine. The
// queue must outlive the pipeline's asynchronous calls: completions that
// arrive after queue.Close are dropped. Call ResetTransport before closing
// the queue so every pending callback still gets its ErrTransportReset.
func NewPipeline(c *Client, queue *CompletionQueue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		client:       c,
		table:        NewTransferTable(logger),
		queue:        queue,
		logger:       logger,
		MaxBatchSize: DefaultMaxBatchSize,
	}
}

// InFlight returns the number of transfers not yet completed.
func (p *Pipeline) InFlight() int {
	return p.table.Len()
}

// ResetTransport abandons every in-flight transfer; each pending callback
// receives ErrTransportReset. The underlying requests are not interrupted,
// their late completions are dropped.
func (p *Pipeline) ResetTransport(reason error) int {
	n := p.table.Reset(reason)
	if n > 0 {
		p.logger.Warn("transport reset, in-flight transfers failed", slog.Int("count", n))
	}

	return n
}

// Upload sends records to the dataset and blocks until the server answers.
// A 400 is returned as *BadRequestError carrying the rejected indices.
func (p *Pipeline) Upload(ctx context.Context, records []record.Record, ds Dataset, sess *Session) error {
	return p.wait(func(done func(error)) {
		p.upload(ctx, records, ds, sess, done)
	})
}

// Delete removes items from the dataset and blocks until the server answers.
func (p *Pipeline) Delete(ctx context.Context, items []DeleteItem, ds Dataset, sess *Session) error {
	return p.wait(func(done func(error)) {
		p.delete(ctx, items, ds, sess, done)
	})
}

// UploadAsync starts an upload and returns immediately; done is called
// once on the completion queue.
func (p *Pipeline) UploadAsync(ctx context.Context, records []record.Record, ds Dataset, sess *Session, done func(error)) {
	p.upload(ctx, records, ds, sess, p.deliver(done))
}

// DeleteAsync starts a delete and returns immediately; done is called once
// on the completion queue.
func (p *Pipeline) DeleteAsync(ctx context.Context, items []DeleteItem, ds Dataset, sess *Session, done func(error)) {
	p.delete(ctx, items, ds, sess, p.deliver(done))
}

func (p *Pipeline) upload(ctx context.Context, records []record.Record, ds Dataset, sess *Session, done func(error)) {
	p.start(ctx, http.MethodPost, ds, sess, len(records), func() ([]byte, error) {
		return encodeBatch(records, record.Encode)
	}, done)
}

func (p *Pipeline) delete(ctx context.Context, items []DeleteItem, ds Dataset, sess *Session, done func(error)) {
	p.start(ctx, http.MethodDelete, ds, sess, len(items), func() ([]byte, error) {
		return encodeBatch(items, func(d DeleteItem) ([]byte, error) { return json.Marshal(d) })
	}, done)
}

// wait blocks for the result of run. Synchronous calls bypass the
// completion queue, so one made from a queued callback cannot deadlock.
func (p *Pipeline) wait(run func(done func(error))) error {
	ch := make(chan error, 1)
	run(func(err error) { ch <- err })

	return <-ch
}

// deliver routes a completion through the queue when one is configured.
func (p *Pipeline) deliver(done func(error)) func(error) {
	return func(err error) {
		if p.queue == nil {
			done(err)
			return
		}

		p.queue.Dispatch(func() { done(err) })
	}
}

// start checks preconditions and encodes the body synchronously, then
// hands the request to a background transfer. Precondition failures are
// delivered through the same callback as transfer results.
func (p *Pipeline) start(
	ctx context.Context, method string, ds Dataset, sess *Session, count int,
	encode func() ([]byte, error), done func(error),
) {
	if err := p.client.gate.OfflineOrUnauthenticated(); err != nil {
		done(err)
		return
	}

	if ds.UploadID == "" {
		done(ErrNoUploadID)
		return
	}

	if p.MaxBatchSize > 0 && count > p.MaxBatchSize {
		done(&APIError{Message: fmt.Sprintf("batch of %d exceeds limit %d", count, p.MaxBatchSize), Err: ErrInternal})
		return
	}

	body, err := encode()
	if err != nil {
		done(err)
		return
	}

	p.transfer(ctx, body, ds.UploadID, method, sess, count, done)
}

// transfer is the single primitive behind uploads and deletes.
func (p *Pipeline) transfer(
	ctx context.Context, body []byte, uploadID, method string, sess *Session, count int, done func(error),
) {
	id := p.table.Begin(func(res TransferResult) {
		done(p.finish(res, uploadID, method, count))
	})

	p.logger.Debug("transfer started",
		slog.Uint64("transfer_id", uint64(id)),
		slog.String("method", method),
		slog.String("upload_id", uploadID),
		slog.Int("items", count),
		slog.Int("bytes", len(body)),
	)

	req := &Request{
		Method:        method,
		Path:          "/v1/datasets/" + url.PathEscape(uploadID) + "/data",
		Body:          body,
		Session:       sess,
		Authenticated: true,
	}

	go func() {
		resp, err := p.client.do(ctx, req, func(chunk []byte) {
			p.table.Append(id, chunk)
		})

		status := StatusCode(err)
		if resp != nil {
			status = resp.StatusCode
		}

		p.table.Complete(id, status, err)
	}()
}

// finish turns a transfer result into the caller-facing error, attaching
// rejected indices to a 400.
func (p *Pipeline) finish(res TransferResult, uploadID, method string, count int) error {
	if res.Err == nil {
		p.logger.Info("transfer complete",
			slog.String("method", method),
			slog.String("upload_id", uploadID),
			slog.Int("items", count),
		)

		return nil
	}

	var bre *BadRequestError
	if errors.As(res.Err, &bre) {
		body := res.Body
		if len(body) == 0 {
			body = bre.Body
		}

		indices := ParseRejectedIndices(body)

		p.logger.Warn("transfer partially rejected",
			slog.String("method", method),
			slog.String("upload_id", uploadID),
			slog.Int("items", count),
			slog.Any("rejected", indices),
		)

		return &BadRequestError{Indices: indices, Body: body}
	}

	p.logger.Warn("transfer failed",
		slog.String("method", method),
		slog.String("upload_id", uploadID),
		slog.String("error", res.Err.Error()),
	)

	return res.Err
}

// encodeBatch serializes items into a bare JSON array.
func encodeBatch[T any](items []T, encode func(T) ([]byte, error)) ([]byte, error) {
	if len(items) == 0 {
		return nil, &APIError{Message: "empty batch", Err: ErrInternal}
	}

	raw := make([]json.RawMessage, 0, len(items))

	for i, item := range items {
		data, err := encode(item)
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("encoding item %d", i), Cause: err, Err: ErrInternal}
		}

		raw = append(raw, data)
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, &APIError{Message: "encoding batch", Cause: err, Err: ErrInternal}
	}

	return body, nil
}
