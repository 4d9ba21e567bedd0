package domain

// Ledger is an accounting target a transaction can be posted against.
type Ledger struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"type"`
}

const (
	// BankLedgerID is the ledger used for the bank leg of every voucher.
	BankLedgerID = 1

	// DefaultLedgerID is assigned to every transaction on upload (Suspense Account).
	DefaultLedgerID = 2
)

var ledgers = []Ledger{
	{ID: 1, Name: "HDFC Bank", Category: "Bank Accounts"},
	{ID: 2, Name: "Suspense Account", Category: "Current Liabilities"},
	{ID: 3, Name: "Bank Charges", Category: "Indirect Expenses"},
}

// Ledgers returns a copy of the fixed ledger list.
func Ledgers() []Ledger {
	out := make([]Ledger, len(ledgers))
	copy(out, ledgers)
	return out
}

// LookupLedger finds a ledger by id.
func LookupLedger(id int) (Ledger, bool) {
	for _, l := range ledgers {
		if l.ID == id {
			return l, true
		}
	}
	return Ledger{}, false
}

// BankLedger returns the ledger used for the fixed bank leg.
func BankLedger() Ledger {
	l, _ := LookupLedger(BankLedgerID)
	return l
}
