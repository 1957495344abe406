// Package vectorindex maintains the similarity index for explainability
// embeddings. Entries are keyed by a stable uint64 derived from the trace id
// so resubmission replaces rather than duplicates.
package vectorindex

import (
	"context"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/arealis/magnus-backend/internal/logger"
)

type Index interface {
	Upsert(ctx context.Context, id uint64, vector []float32) error
	Remove(ctx context.Context, id uint64) error
}

// VectorID derives the index key for a trace id: an 8-byte BLAKE2b digest of
// the UTF-8 bytes, read big-endian.
func VectorID(traceID string) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// blake2b.New only fails on invalid size/key; 8 and nil are valid.
		panic(err)
	}
	_, _ = h.Write([]byte(traceID))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

type noopIndex struct {
	log *logger.Logger
}

// NewNoop returns an index that accepts every write and does nothing.
// Selected at startup when no index engine is configured or reachable, so
// the record-write path keeps working without a similarity backend.
func NewNoop(log *logger.Logger) Index {
	return &noopIndex{log: log.With("service", "NoopVectorIndex")}
}

func (n *noopIndex) Upsert(ctx context.Context, id uint64, vector []float32) error {
	n.log.Debug("vector index disabled; dropping upsert", "vector_id", id, "dim", len(vector))
	return nil
}

func (n *noopIndex) Remove(ctx context.Context, id uint64) error {
	n.log.Debug("vector index disabled; dropping remove", "vector_id", id)
	return nil
}
