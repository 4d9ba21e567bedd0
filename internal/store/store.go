package store

import (
	"context"
	"errors"

	"github.com/dvloznov/tallysync/internal/domain"
)

var (
	// ErrStatementNotFound is returned for an unknown statement id.
	ErrStatementNotFound = errors.New("statement not found")

	// ErrTransactionNotFound is returned for an unknown transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrLedgerNotFound is returned when a ledger id is not in the fixed list.
	ErrLedgerNotFound = errors.New("ledger not found")
)

// StatementStore holds uploaded statements and their transactions.
// Implementations live for the whole process; nothing is ever deleted.
type StatementStore interface {
	// Upload stores a record set and returns the new statement id. Every
	// transaction starts on domain.DefaultLedgerID.
	Upload(ctx context.Context, upload Upload) (string, error)

	// AssignLedger moves one transaction to another ledger.
	AssignLedger(ctx context.Context, transactionID string, ledgerID int) error

	// GetStatement returns a copy of the statement.
	GetStatement(ctx context.Context, statementID string) (*domain.Statement, error)

	// ListStatements returns every statement in upload order.
	ListStatements(ctx context.Context) ([]*domain.Statement, error)

	// Transactions returns copies of a statement's transactions in index order.
	Transactions(ctx context.Context, statementID string) ([]*domain.Transaction, error)

	// SetXML attaches a rendered document, replacing any previous one.
	SetXML(ctx context.Context, statementID, xml string) error
}

// Upload is the input to StatementStore.Upload.
type Upload struct {
	Filename     string
	Transactions []domain.Fields
	Summary      map[string]any
}
