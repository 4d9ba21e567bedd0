package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/tallysync/internal/domain"
	"github.com/dvloznov/tallysync/internal/store"
)

// Store is an in-memory implementation of StatementStore.
// Data lives from process start to process exit. Identifiers come from a
// monotonic counter that is only advanced under the write lock.
type Store struct {
	mu           sync.RWMutex
	statements   map[string]*domain.Statement
	transactions map[string]*domain.Transaction
	order        []string
	seq          int
	now          func() time.Time
}

// NewStore creates a new in-memory statement store.
func NewStore() *Store {
	return &Store{
		statements:   make(map[string]*domain.Statement),
		transactions: make(map[string]*domain.Transaction),
		now:          time.Now,
	}
}

// Upload implements the StatementStore interface.
func (s *Store) Upload(ctx context.Context, upload store.Upload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	statementID := fmt.Sprintf("stmt_%d", s.seq)

	stmt := &domain.Statement{
		ID:             statementID,
		Filename:       upload.Filename,
		UploadedAt:     s.now(),
		TransactionIDs: make([]string, 0, len(upload.Transactions)),
		Summary:        upload.Summary,
	}

	for idx, fields := range upload.Transactions {
		txnID := fmt.Sprintf("%s_txn_%d", statementID, idx)
		s.transactions[txnID] = &domain.Transaction{
			ID:          txnID,
			StatementID: statementID,
			Index:       idx,
			Fields:      copyFields(fields),
			LedgerID:    domain.DefaultLedgerID,
		}
		stmt.TransactionIDs = append(stmt.TransactionIDs, txnID)
	}

	s.statements[statementID] = stmt
	s.order = append(s.order, statementID)

	return statementID, nil
}

// AssignLedger implements the StatementStore interface.
func (s *Store) AssignLedger(ctx context.Context, transactionID string, ledgerID int) error {
	if _, ok := domain.LookupLedger(ledgerID); !ok {
		return fmt.Errorf("AssignLedger: %d: %w", ledgerID, store.ErrLedgerNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, exists := s.transactions[transactionID]
	if !exists {
		return fmt.Errorf("AssignLedger: %s: %w", transactionID, store.ErrTransactionNotFound)
	}

	txn.LedgerID = ledgerID
	return nil
}

// GetStatement implements the StatementStore interface.
func (s *Store) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stmt, exists := s.statements[statementID]
	if !exists {
		return nil, fmt.Errorf("GetStatement: %s: %w", statementID, store.ErrStatementNotFound)
	}

	return copyStatement(stmt), nil
}

// ListStatements implements the StatementStore interface.
func (s *Store) ListStatements(ctx context.Context) ([]*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Statement, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, copyStatement(s.statements[id]))
	}
	return result, nil
}

// Transactions implements the StatementStore interface.
func (s *Store) Transactions(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stmt, exists := s.statements[statementID]
	if !exists {
		return nil, fmt.Errorf("Transactions: %s: %w", statementID, store.ErrStatementNotFound)
	}

	result := make([]*domain.Transaction, 0, len(stmt.TransactionIDs))
	for _, id := range stmt.TransactionIDs {
		txn, ok := s.transactions[id]
		if !ok {
			continue
		}
		txnCopy := *txn
		txnCopy.Fields = copyFields(txn.Fields)
		result = append(result, &txnCopy)
	}
	return result, nil
}

// SetXML implements the StatementStore interface.
func (s *Store) SetXML(ctx context.Context, statementID, xml string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, exists := s.statements[statementID]
	if !exists {
		return fmt.Errorf("SetXML: %s: %w", statementID, store.ErrStatementNotFound)
	}

	now := s.now()
	stmt.XML = xml
	stmt.RenderedAt = &now
	return nil
}

func copyStatement(stmt *domain.Statement) *domain.Statement {
	stmtCopy := *stmt
	stmtCopy.TransactionIDs = append([]string(nil), stmt.TransactionIDs...)
	return &stmtCopy
}

func copyFields(f domain.Fields) domain.Fields {
	out := make(domain.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Ensure Store implements StatementStore interface.
var _ store.StatementStore = (*Store)(nil)
