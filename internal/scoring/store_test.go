package scoring

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
)

type flagKey struct {
	transactionID uuid.UUID
	rule          string
}

// memStore is an in-memory stand-in for the transaction, customer,
// sanctions and flag repositories.
type memStore struct {
	mu           sync.Mutex
	transactions []*models.Transaction
	customers    map[uuid.UUID]*models.Customer
	sanctions    []models.SanctionedEntity
	flags        map[flagKey]*models.Flag
	historyErr   error
	pagesServed  int
}

func newMemStore() *memStore {
	return &memStore{
		customers: map[uuid.UUID]*models.Customer{},
		flags:     map[flagKey]*models.Flag{},
	}
}

func (s *memStore) addCustomer(country string, riskScore int) *models.Customer {
	c := &models.Customer{ID: uuid.New(), CountryCode: country, RiskScore: riskScore}
	s.customers[c.ID] = c
	return c
}

func (s *memStore) addTransaction(sender uuid.UUID, txType string, amount int64, at time.Time) *models.Transaction {
	tx := &models.Transaction{
		ID:              uuid.New(),
		SenderID:        sender,
		TransactionType: txType,
		Amount:          decimal.NewFromInt(amount),
		Currency:        "USD",
		TransactionDate: at,
	}
	s.transactions = append(s.transactions, tx)
	return tx
}

func (s *memStore) CountSenderTransactions(_ context.Context, q models.HistoryQuery) (int, error) {
	if s.historyErr != nil {
		return 0, s.historyErr
	}
	count := 0
	for _, tx := range s.transactions {
		if tx.SenderID != q.SenderID || tx.ID == q.ExcludeID {
			continue
		}
		d := tx.TransactionDate
		if d.Before(q.From) {
			continue
		}
		if !q.To.IsZero() {
			if q.InclusiveTo && d.After(q.To) {
				continue
			}
			if !q.InclusiveTo && !d.Before(q.To) {
				continue
			}
		}
		if q.MinAmount != nil && tx.Amount.LessThan(*q.MinAmount) {
			continue
		}
		if q.MaxAmount != nil && tx.Amount.GreaterThan(*q.MaxAmount) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *memStore) GetCustomer(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	if c, ok := s.customers[id]; ok {
		return c, nil
	}
	return nil, repositories.ErrCustomerNotFound
}

func (s *memStore) FindSanctionedEntity(_ context.Context, name string) (*models.SanctionedEntity, error) {
	if name == "" {
		return nil, nil
	}
	for i := range s.sanctions {
		if strings.Contains(strings.ToLower(s.sanctions[i].Name), strings.ToLower(name)) {
			return &s.sanctions[i], nil
		}
	}
	return nil, nil
}

func (s *memStore) Flag(_ context.Context, transactionID uuid.UUID, ruleName, description, riskLevel string, riskScore int) (*models.Flag, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := flagKey{transactionID, ruleName}
	if existing, ok := s.flags[key]; ok {
		return existing, false, nil
	}
	flag := &models.Flag{
		ID:              uuid.New(),
		TransactionID:   transactionID,
		RuleName:        ruleName,
		RuleDescription: description,
		RiskLevel:       riskLevel,
		RiskScore:       riskScore,
		Status:          models.FlagStatusPending,
		FlaggedAt:       time.Now().UTC(),
	}
	s.flags[key] = flag
	return flag, true, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	for _, tx := range s.transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (s *memStore) ListUnflagged(_ context.Context, after *uuid.UUID, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flagged := map[uuid.UUID]bool{}
	for key := range s.flags {
		flagged[key.transactionID] = true
	}

	sorted := append([]*models.Transaction(nil), s.transactions...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	var page []*models.Transaction
	for _, tx := range sorted {
		if flagged[tx.ID] {
			continue
		}
		if after != nil && bytes.Compare(tx.ID[:], after[:]) <= 0 {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, tx)
	}
	s.pagesServed++
	return page, nil
}

func (s *memStore) ListInRange(_ context.Context, senderID *uuid.UUID, from, to time.Time, limit int) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range s.transactions {
		if senderID != nil && tx.SenderID != *senderID {
			continue
		}
		if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *memStore) ListByTransaction(_ context.Context, transactionID uuid.UUID) ([]*models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Flag
	for key, f := range s.flags {
		if key.transactionID == transactionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memStore) flagSet() map[flagKey]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[flagKey]bool, len(s.flags))
	for key := range s.flags {
		out[key] = true
	}
	return out
}

func (s *memStore) rulesFor(transactionID uuid.UUID) []string {
	var out []string
	for key := range s.flagSet() {
		if key.transactionID == transactionID {
			out = append(out, key.rule)
		}
	}
	sort.Strings(out)
	return out
}
