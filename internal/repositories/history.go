package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/enterprise/aml-screening/internal/models"
)

// History answers the read-only lookups that screening rules need
type History struct {
	transactions *TransactionRepository
	customers    *CustomerRepository
	sanctions    *SanctionsRepository
}

// NewHistory composes the repositories backing rule lookups
func NewHistory(transactions *TransactionRepository, customers *CustomerRepository, sanctions *SanctionsRepository) *History {
	return &History{transactions: transactions, customers: customers, sanctions: sanctions}
}

// CountSenderTransactions counts a sender's other transactions in a window
func (h *History) CountSenderTransactions(ctx context.Context, q models.HistoryQuery) (int, error) {
	return h.transactions.CountSenderTransactions(ctx, q)
}

// GetCustomer returns the customer, or ErrCustomerNotFound
func (h *History) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return h.customers.GetByID(ctx, id)
}

// FindSanctionedEntity returns a matching watch-list entry or nil
func (h *History) FindSanctionedEntity(ctx context.Context, counterpartyName string) (*models.SanctionedEntity, error) {
	return h.sanctions.FindByCounterparty(ctx, counterpartyName)
}
