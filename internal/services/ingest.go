package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/repos"
	"github.com/arealis/magnus-backend/internal/types"
)

// csvHeaders is the required column set for a transaction upload, in any
// order. Missing columns fail the whole file.
var csvHeaders = []string{
	"date",
	"vendor_id",
	"vendor_name",
	"amount",
	"currency",
	"payment_method",
	"bank_name",
	"gst_number",
	"pan_number",
	"payment_purpose",
	"receiving_bank",
	"receiving_account",
	"country",
}

// requiredBankCredentials maps a supported bank to the credential fields a
// live connection must present.
var requiredBankCredentials = map[string][]string{
	"hdfc":  {"api_key"},
	"icici": {"api_key"},
	"axis":  {"api_key"},
	"kotak": {"api_key"},
}

const transactionDateLayout = "2006-01-02"

// IngestService brings transaction data into the store, either as a CSV
// upload or by registering a live bank connection.
type IngestService interface {
	CreateSession(ctx context.Context, source types.IngestSource) (*types.IngestSession, error)
	IngestCSV(ctx context.Context, r io.Reader) (*types.IngestSession, error)
	RegisterBankConnection(ctx context.Context, bankName string, credentials map[string]string, sessionID *uuid.UUID) (*types.BankConnection, error)
}

type ingestService struct {
	db           *gorm.DB
	log          *logger.Logger
	sessions     repos.IngestSessionRepo
	transactions repos.TransactionRepo
	banks        repos.BankConnectionRepo
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.IngestSessionRepo,
	transactions repos.TransactionRepo,
	banks repos.BankConnectionRepo,
) IngestService {
	return &ingestService{
		db:           db,
		log:          baseLog.With("service", "IngestService"),
		sessions:     sessions,
		transactions: transactions,
		banks:        banks,
	}
}

func (s *ingestService) CreateSession(ctx context.Context, source types.IngestSource) (*types.IngestSession, error) {
	if source != types.IngestSourceCSV && source != types.IngestSourceLive {
		return nil, fmt.Errorf("%w: unknown ingest source %q", ErrInvalidArgument, source)
	}
	session := &types.IngestSession{
		ID:     uuid.New(),
		Source: source,
		Status: types.IngestStatusReceived,
	}
	if err := s.sessions.Create(ctx, nil, session); err != nil {
		return nil, err
	}
	return session, nil
}

// IngestCSV streams a transaction upload into a fresh session. Any header
// or row error fails the whole file and leaves the session marked failed
// with the offending detail.
func (s *ingestService) IngestCSV(ctx context.Context, r io.Reader) (*types.IngestSession, error) {
	session := &types.IngestSession{
		ID:     uuid.New(),
		Source: types.IngestSourceCSV,
		Status: types.IngestStatusProcessing,
	}
	if err := s.sessions.Create(ctx, nil, session); err != nil {
		return nil, err
	}

	transactions, err := s.parseCSV(r, session.ID)
	if err != nil {
		s.failSession(ctx, session, err)
		return session, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transactions.CreateBatch(ctx, tx, transactions); err != nil {
			return err
		}
		return s.sessions.UpdateFields(ctx, tx, session.ID, map[string]interface{}{
			"status":           types.IngestStatusCompleted,
			"records_ingested": len(transactions),
		})
	})
	if err != nil {
		s.failSession(ctx, session, err)
		return session, err
	}

	session.Status = types.IngestStatusCompleted
	session.RecordsIngested = len(transactions)
	s.log.Info("csv ingest completed",
		"session_id", session.ID.String(),
		"records_ingested", session.RecordsIngested)
	return session, nil
}

func (s *ingestService) parseCSV(r io.Reader, sessionID uuid.UUID) ([]*types.Transaction, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidArgument)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable header: %v", ErrInvalidArgument, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	var missing []string
	for _, want := range csvHeaders {
		if _, ok := columns[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidArgument, strings.Join(missing, ", "))
	}

	var transactions []*types.Transaction
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidArgument, line, err)
		}
		tr, err := parseTransactionRow(row, columns, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidArgument, line, err)
		}
		transactions = append(transactions, tr)
	}
	if len(transactions) == 0 {
		return nil, fmt.Errorf("%w: no transaction rows", ErrInvalidArgument)
	}
	return transactions, nil
}

func parseTransactionRow(row []string, columns map[string]int, sessionID uuid.UUID) (*types.Transaction, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	optional := func(name string) *string {
		v := field(name)
		if v == "" {
			return nil
		}
		return &v
	}

	date, err := time.Parse(transactionDateLayout, field("date"))
	if err != nil {
		return nil, fmt.Errorf("bad date %q", field("date"))
	}
	amount, err := strconv.ParseFloat(field("amount"), 64)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q", field("amount"))
	}

	for _, name := range []string{"vendor_id", "vendor_name", "currency", "payment_method", "bank_name", "receiving_bank", "receiving_account", "country"} {
		if field(name) == "" {
			return nil, fmt.Errorf("missing %s", name)
		}
	}

	return &types.Transaction{
		ID:               uuid.New(),
		SessionID:        sessionID,
		Date:             date,
		VendorID:         field("vendor_id"),
		VendorName:       field("vendor_name"),
		Amount:           amount,
		Currency:         field("currency"),
		PaymentMethod:    field("payment_method"),
		BankName:         field("bank_name"),
		GSTNumber:        optional("gst_number"),
		PANNumber:        optional("pan_number"),
		PaymentPurpose:   optional("payment_purpose"),
		ReceivingBank:    field("receiving_bank"),
		ReceivingAccount: field("receiving_account"),
		Country:          field("country"),
	}, nil
}

func (s *ingestService) failSession(ctx context.Context, session *types.IngestSession, cause error) {
	message := truncateMessage(cause.Error(), 500)
	err := s.sessions.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status":        types.IngestStatusFailed,
		"error_message": message,
	})
	if err != nil {
		s.log.Error("failed to mark session failed",
			"session_id", session.ID.String(),
			"error", err)
	}
	session.Status = types.IngestStatusFailed
	session.ErrorMessage = &message
}

// RegisterBankConnection validates the per-bank credential requirements and
// stores the connection. Credentials are kept server-side only; the json
// tag on the model hides them from responses.
func (s *ingestService) RegisterBankConnection(ctx context.Context, bankName string, credentials map[string]string, sessionID *uuid.UUID) (*types.BankConnection, error) {
	bank := strings.TrimSpace(strings.ToLower(bankName))
	required, ok := requiredBankCredentials[bank]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported bank %q", ErrInvalidArgument, bankName)
	}
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(credentials[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing credentials for %s: %s", ErrInvalidArgument, bank, strings.Join(missing, ", "))
	}

	payload := make(map[string]interface{}, len(credentials))
	for k, v := range credentials {
		payload[k] = v
	}
	encoded, err := mapJSON(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	connection := &types.BankConnection{
		ID:           uuid.New(),
		SessionID:    sessionID,
		BankName:     bank,
		Status:       types.BankConnectionStatusConnected,
		Credentials:  encoded,
		LastSyncedAt: &now,
	}
	if err := s.banks.Create(ctx, nil, connection); err != nil {
		return nil, err
	}
	s.log.Info("bank connection registered",
		"bank_name", bank,
		"connection_id", connection.ID.String())
	return connection, nil
}

func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	return message[:limit]
}
