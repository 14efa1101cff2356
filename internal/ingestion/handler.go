package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/scoring"
)

// ErrInvalidTransaction wraps every request validation failure
var ErrInvalidTransaction = errors.New("invalid transaction")

// TransactionRequest represents an incoming transaction
type TransactionRequest struct {
	SenderID            string          `json:"sender_id" binding:"required"`
	ReceiverID          string          `json:"receiver_id"`
	TransactionType     string          `json:"transaction_type" binding:"required,oneof=transfer withdrawal deposit payment"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Description         string          `json:"description"`
	Channel             string          `json:"channel"`
	CounterpartyName    string          `json:"counterparty_name"`
	CounterpartyAccount string          `json:"counterparty_account"`
	CounterpartyCountry string          `json:"counterparty_country"`
	TransactionDate     *time.Time      `json:"transaction_date"`
	ReferenceNumber     string          `json:"reference_number"`
	IPAddress           string          `json:"ip_address"`
	LocationLat         *float64        `json:"location_lat"`
	LocationLng         *float64        `json:"location_lng"`
}

// BatchTransactionRequest represents a batch of transactions
type BatchTransactionRequest struct {
	Transactions []TransactionRequest `json:"transactions" binding:"required,min=1,max=1000"`
	Screen       bool                 `json:"screen"`
}

// TransactionResponse represents the response after ingesting a transaction
type TransactionResponse struct {
	TransactionID string             `json:"transaction_id"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	Screening     *scoring.RunResult `json:"screening,omitempty"`
	Message       string             `json:"message,omitempty"`
}

// BatchTransactionResponse represents the response for batch ingestion
type BatchTransactionResponse struct {
	Successful int                   `json:"successful"`
	Failed     int                   `json:"failed"`
	Results    []TransactionResponse `json:"results"`
}

// TransactionStore persists transactions
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	CreateBatch(ctx context.Context, transactions []*models.Transaction) error
}

// CustomerLookup resolves senders
type CustomerLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// Screener runs the rule pass over a transaction
type Screener interface {
	Run(ctx context.Context, req scoring.RunRequest) (*scoring.RunResult, error)
}

// IngestionService handles transaction ingestion
type IngestionService struct {
	transactions TransactionStore
	customers    CustomerLookup
	screener     Screener
}

// NewIngestionService creates a new ingestion service. screener may be nil.
func NewIngestionService(transactions TransactionStore, customers CustomerLookup, screener Screener) *IngestionService {
	return &IngestionService{
		transactions: transactions,
		customers:    customers,
		screener:     screener,
	}
}

// IngestTransaction stores a single transaction and, when screen is set,
// runs the rules over it immediately
func (s *IngestionService) IngestTransaction(ctx context.Context, req *TransactionRequest, screen bool) (*TransactionResponse, error) {
	startTime := time.Now()

	tx, err := toTransaction(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.customers.GetByID(ctx, tx.SenderID); err != nil {
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	resp := &TransactionResponse{
		TransactionID: tx.ID.String(),
		Status:        tx.Status,
		CreatedAt:     tx.CreatedAt,
	}

	if screen && s.screener != nil {
		result, err := s.screener.Run(ctx, scoring.RunRequest{TransactionID: &tx.ID})
		if err != nil {
			log.Error().Err(err).
				Str("transaction_id", tx.ID.String()).
				Msg("Screening after ingestion failed")
			resp.Message = "stored; screening failed and will be retried by the batch worker"
		} else {
			resp.Screening = result
		}
	}

	log.Info().
		Str("transaction_id", tx.ID.String()).
		Str("sender_id", tx.SenderID.String()).
		Str("amount", tx.Amount.StringFixed(2)).
		Dur("processing_time", time.Since(startTime)).
		Msg("Transaction ingested")

	return resp, nil
}

// IngestBatch validates every transaction, stores the valid ones in a single
// database transaction and optionally screens them
func (s *IngestionService) IngestBatch(ctx context.Context, req *BatchTransactionRequest) (*BatchTransactionResponse, error) {
	startTime := time.Now()

	response := &BatchTransactionResponse{
		Results: make([]TransactionResponse, 0, len(req.Transactions)),
	}

	var transactions []*models.Transaction
	for i := range req.Transactions {
		tx, err := toTransaction(&req.Transactions[i])
		if err != nil {
			response.Failed++
			response.Results = append(response.Results, TransactionResponse{
				Status:  "failed",
				Message: err.Error(),
			})
			continue
		}
		transactions = append(transactions, tx)
	}

	if len(transactions) > 0 {
		if err := s.transactions.CreateBatch(ctx, transactions); err != nil {
			log.Error().Err(err).Msg("Failed to batch insert transactions")
			for range transactions {
				response.Failed++
				response.Results = append(response.Results, TransactionResponse{
					Status:  "failed",
					Message: fmt.Sprintf("batch insert failed: %v", err),
				})
			}
			transactions = nil
		}
	}

	for _, tx := range transactions {
		result := TransactionResponse{
			TransactionID: tx.ID.String(),
			Status:        tx.Status,
			CreatedAt:     tx.CreatedAt,
		}
		if req.Screen && s.screener != nil {
			run, err := s.screener.Run(ctx, scoring.RunRequest{TransactionID: &tx.ID})
			if err != nil {
				log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("Screening after ingestion failed")
				result.Message = "stored; screening failed"
			} else {
				result.Screening = run
			}
		}
		response.Successful++
		response.Results = append(response.Results, result)
	}

	log.Info().
		Int("total", len(req.Transactions)).
		Int("successful", response.Successful).
		Int("failed", response.Failed).
		Dur("processing_time", time.Since(startTime)).
		Msg("Batch ingestion completed")

	return response, nil
}

func toTransaction(req *TransactionRequest) (*models.Transaction, error) {
	senderID, err := uuid.Parse(req.SenderID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sender_id: %v", ErrInvalidTransaction, err)
	}

	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidTransaction)
	}

	switch req.TransactionType {
	case models.TransactionTypeTransfer, models.TransactionTypeWithdrawal,
		models.TransactionTypeDeposit, models.TransactionTypePayment:
	default:
		return nil, fmt.Errorf("%w: unknown transaction_type %q", ErrInvalidTransaction, req.TransactionType)
	}

	tx := &models.Transaction{
		SenderID:            senderID,
		TransactionType:     req.TransactionType,
		Amount:              req.Amount,
		Currency:            strings.ToUpper(req.Currency),
		Description:         req.Description,
		Channel:             req.Channel,
		CounterpartyName:    strings.TrimSpace(req.CounterpartyName),
		CounterpartyAccount: req.CounterpartyAccount,
		CounterpartyCountry: strings.ToUpper(strings.TrimSpace(req.CounterpartyCountry)),
		ReferenceNumber:     req.ReferenceNumber,
		IPAddress:           req.IPAddress,
		LocationLat:         req.LocationLat,
		LocationLng:         req.LocationLng,
	}

	if req.ReceiverID != "" {
		receiverID, err := uuid.Parse(req.ReceiverID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid receiver_id: %v", ErrInvalidTransaction, err)
		}
		tx.ReceiverID = &receiverID
	}
	if req.TransactionDate != nil {
		tx.TransactionDate = *req.TransactionDate
	}
	if tx.CounterpartyCountry != "" && len(tx.CounterpartyCountry) != 2 {
		return nil, fmt.Errorf("%w: counterparty_country must be an ISO-3166 alpha-2 code", ErrInvalidTransaction)
	}
	return tx, nil
}
