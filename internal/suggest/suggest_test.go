package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/domain"
)

type mockModel struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateFunc(ctx, prompt)
}

func testTxns() []*domain.Transaction {
	return []*domain.Transaction{
		{ID: "stmt_1_txn_0", LedgerID: 2, Fields: domain.Fields{domain.FieldDetails: "SMS CHARGES", domain.FieldDebit: "17.70"}},
		{ID: "stmt_1_txn_1", LedgerID: 2, Fields: domain.Fields{domain.FieldDetails: "NEFT CR ACME", domain.FieldCredit: "5,000"}},
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n[]\n```", `[]`},
		{"surrounding text", "Here you go:\n[1,2]\nThanks", `[1,2]`},
		{"single line fence", "```[]", "```[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestSuggest(t *testing.T) {
	var prompt string
	model := &mockModel{GenerateFunc: func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "```json\n[" +
			`{"transaction_id":"stmt_1_txn_0","ledger_id":3,"reason":"bank fee"},` +
			`{"transaction_id":"stmt_1_txn_1","ledger_id":1},` +
			`{"transaction_id":"unknown","ledger_id":2},` +
			`{"transaction_id":"stmt_1_txn_0","ledger_id":2}` +
			"]\n```", nil
	}}

	got, err := New(model, zerolog.Nop()).Suggest(context.Background(), testTxns())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, Suggestion{TransactionID: "stmt_1_txn_0", LedgerID: 3, LedgerName: "Bank Charges", Reason: "bank fee"}, got[0])
	assert.Equal(t, "HDFC Bank", got[1].LedgerName)

	assert.Contains(t, prompt, `id "stmt_1_txn_0": details "SMS CHARGES"`)
	assert.Contains(t, prompt, "id 3: Bank Charges (Indirect Expenses)")
	assert.NotContains(t, prompt, "id 1: HDFC Bank")
}

func TestSuggest_Errors(t *testing.T) {
	_, err := New(nil, zerolog.Nop()).Suggest(context.Background(), testTxns())
	assert.ErrorIs(t, err, ErrDisabled)

	failing := &mockModel{GenerateFunc: func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	_, err = New(failing, zerolog.Nop()).Suggest(context.Background(), testTxns())
	assert.ErrorContains(t, err, "quota exceeded")

	garbage := &mockModel{GenerateFunc: func(context.Context, string) (string, error) {
		return "I cannot help with that", nil
	}}
	_, err = New(garbage, zerolog.Nop()).Suggest(context.Background(), testTxns())
	assert.Error(t, err)

	empty := &mockModel{GenerateFunc: func(context.Context, string) (string, error) { return " ", nil }}
	_, err = New(empty, zerolog.Nop()).Suggest(context.Background(), testTxns())
	assert.Error(t, err)
}

func TestSuggest_NoTransactions(t *testing.T) {
	model := &mockModel{GenerateFunc: func(context.Context, string) (string, error) {
		t.Fatal("model should not be called")
		return "", nil
	}}
	got, err := New(model, zerolog.Nop()).Suggest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
