package platform

import (
	"bytes"
	"log/slog"
	"sync"
)

// TransferID identifies one in-flight background transfer. IDs are unique
// within the process and strictly increasing.
type TransferID uint64

// TransferResult is what a completed transfer delivers to its callback.
type TransferResult struct {
	Body       []byte // every response byte the transport delivered
	StatusCode int    // 0 when no response was received
	Err        error
}

type pendingTransfer struct {
	done func(TransferResult)
	body bytes.Buffer
}

// TransferTable tracks in-flight transfers. Each entry correlates a
// transfer with its completion callback and the response bytes delivered so
// far. Entries are created by Begin and removed exactly once, by Complete or
// Reset. All access goes through mu; callbacks run without it.
type TransferTable struct {
	logger *slog.Logger

	mu      sync.Mutex
	next    TransferID
	pending map[TransferID]*pendingTransfer
}

// NewTransferTable creates an empty table.
func NewTransferTable(logger *slog.Logger) *TransferTable {
	if logger == nil {
		logger = slog.Default()
	}

	return &TransferTable{
		logger:  logger,
		pending: make(map[TransferID]*pendingTransfer),
	}
}

// Begin registers a transfer and returns its id.
func (t *TransferTable) Begin(done func(TransferResult)) TransferID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.pending[t.next] = &pendingTransfer{done: done}

	return t.next
}

// Append accumulates response bytes for id. Bytes for an unknown id are
// logged and dropped.
func (t *TransferTable) Append(id TransferID, chunk []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[id]
	if !ok {
		t.logger.Warn("transfer: data for unknown transfer dropped",
			slog.Uint64("transfer_id", uint64(id)),
			slog.Int("bytes", len(chunk)),
		)

		return false
	}

	p.body.Write(chunk)

	return true
}

// Complete removes id and delivers its accumulated bytes, status and error
// to the stored callback. A completion for an unknown id is logged and
// dropped.
func (t *TransferTable) Complete(id TransferID, statusCode int, err error) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("transfer: completion for unknown transfer dropped",
			slog.Uint64("transfer_id", uint64(id)),
			slog.Int("status", statusCode),
		)

		return false
	}

	p.done(TransferResult{Body: p.body.Bytes(), StatusCode: statusCode, Err: err})

	return true
}

// Reset drops every in-flight transfer and fails each callback with
// ErrTransportReset wrapping reason. Late completions for the dropped ids
// are then ignored by Complete. It returns the number of transfers failed.
func (t *TransferTable) Reset(reason error) int {
	t.mu.Lock()
	orphans := t.pending
	t.pending = make(map[TransferID]*pendingTransfer)
	t.mu.Unlock()

	for id, p := range orphans {
		t.logger.Warn("transfer: failing orphaned transfer after reset",
			slog.Uint64("transfer_id", uint64(id)),
		)

		p.done(TransferResult{
			Body: p.body.Bytes(),
			Err:  &APIError{Err: ErrTransportReset, Cause: reason},
		})
	}

	return len(orphans)
}

// Len returns the number of in-flight transfers.
func (t *TransferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}
