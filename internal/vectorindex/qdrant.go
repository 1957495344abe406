package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arealis/magnus-backend/internal/logger"
)

const maxErrorBodyBytes = 1024

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("qdrant url is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("invalid qdrant url %q; expected absolute URL like http://qdrant:6333", cfg.URL)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if cfg.VectorDim <= 0 {
		return fmt.Errorf("qdrant vector dim must be positive, got %d", cfg.VectorDim)
	}
	return nil
}

type qdrantIndex struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

// NewQdrant connects to a Qdrant collection and verifies its dimensionality.
// A collection whose vector size does not match cfg.VectorDim is dropped and
// recreated empty; stale vectors from an older dimension are never reused.
func NewQdrant(log *logger.Logger, cfg Config) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	idx := &qdrantIndex{
		log:     log.With("service", "QdrantVectorIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		return nil, err
	}

	log.Info(
		"Qdrant vector index ready",
		"url", idx.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return idx, nil
}

func (s *qdrantIndex) Upsert(ctx context.Context, id uint64, vector []float32) error {
	if s == nil {
		return nil
	}
	const op = "upsert"
	if len(vector) == 0 {
		return opErr(op, OperationErrorValidation, "vector values required", nil)
	}
	if len(vector) != s.cfg.VectorDim {
		return opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)),
			nil,
		)
	}

	// Qdrant point ids are upsert-by-replacement, so a re-submitted trace
	// overwrites its previous entry instead of duplicating it.
	req := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": vector},
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *qdrantIndex) Remove(ctx context.Context, id uint64) error {
	if s == nil {
		return nil
	}
	const op = "remove"
	req := map[string]any{"points": []uint64{id}}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

func (s *qdrantIndex) ensureCollection(ctx context.Context) error {
	const op = "bootstrap"

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err != nil {
		var opErrTyped *OperationError
		if errors.As(err, &opErrTyped) && opErrTyped.StatusCode == http.StatusNotFound {
			return s.createCollection(ctx)
		}
		return err
	}

	size := info.Config.Params.Vectors.Size
	if size == s.cfg.VectorDim {
		return nil
	}

	s.log.Warn(
		"Qdrant collection dimension mismatch; rebuilding empty",
		"collection", s.cfg.Collection,
		"existing_dim", size,
		"expected_dim", s.cfg.VectorDim,
	)
	if err := s.doJSON(ctx, op, http.MethodDelete, s.collectionPath(""), nil, nil); err != nil {
		return err
	}
	return s.createCollection(ctx)
}

func (s *qdrantIndex) createCollection(ctx context.Context) error {
	const op = "create_collection"
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Dot",
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil)
}

func (s *qdrantIndex) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *qdrantIndex) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}
