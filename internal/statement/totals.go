package statement

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/tallysync/internal/domain"
)

// Totals sums the debit and credit columns of a statement.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal

	// Count is the number of transactions that carry an amount.
	Count int

	// Unparsed counts amounts that are not numbers and were left out.
	Unparsed int
}

// Net is credits minus debits.
func (t Totals) Net() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// Sum totals txns. Thousands separators are ignored.
func Sum(txns []*domain.Transaction) Totals {
	totals := Totals{Debit: decimal.Zero, Credit: decimal.Zero}

	for _, txn := range txns {
		debit, credit := txn.Debit(), txn.Credit()
		if debit == "" && credit == "" {
			continue
		}
		totals.Count++

		if debit != "" {
			if d, ok := amount(debit); ok {
				totals.Debit = totals.Debit.Add(d)
			} else {
				totals.Unparsed++
			}
			continue
		}

		if c, ok := amount(credit); ok {
			totals.Credit = totals.Credit.Add(c)
		} else {
			totals.Unparsed++
		}
	}

	return totals
}

func amount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
