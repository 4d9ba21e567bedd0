package voucher

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/tallysync/internal/domain"
)

// Voucher types understood by Tally.
const (
	TypePayment = "Payment"
	TypeReceipt = "Receipt"
)

// Voucher is one rendered accounting entry: the bank leg plus the leg for
// the transaction's assigned ledger.
type Voucher struct {
	TransactionID string
	Type          string
	Date          string
	Narration     string
	Reference     string
	Amount        string
	Ledger        domain.Ledger
}

// IsPayment reports whether the money left the bank account.
func (v Voucher) IsPayment() bool {
	return v.Type == TypePayment
}

// Renderer turns statement transactions into a Tally import envelope.
type Renderer struct {
	// Now supplies the fallback date for unparseable transaction dates.
	Now func() time.Time

	// BankLedger names the fixed bank leg of every voucher.
	BankLedger domain.Ledger
}

// NewRenderer returns a renderer using the wall clock and the HDFC bank ledger.
func NewRenderer() *Renderer {
	return &Renderer{
		Now:        time.Now,
		BankLedger: domain.BankLedger(),
	}
}

// Vouchers maps transactions to vouchers. Transactions without a known
// ledger or without any amount are skipped.
func (r *Renderer) Vouchers(txns []*domain.Transaction) []Voucher {
	now := r.Now()
	vouchers := make([]Voucher, 0, len(txns))

	for _, txn := range txns {
		ledger, ok := domain.LookupLedger(txn.LedgerID)
		if !ok {
			continue
		}

		debit := txn.Debit()
		credit := txn.Credit()
		if debit == "" && credit == "" {
			continue
		}

		v := Voucher{
			TransactionID: txn.ID,
			Type:          TypeReceipt,
			Date:          TallyDate(txn.Fields.Get(domain.FieldDateTime), now),
			Narration:     txn.Fields[domain.FieldDetails],
			Reference:     txn.Fields.Get(domain.FieldChequeNo),
			Amount:        credit,
			Ledger:        ledger,
		}
		if debit != "" {
			v.Type = TypePayment
			v.Amount = debit
		}
		v.Amount = strings.ReplaceAll(v.Amount, ",", "")

		vouchers = append(vouchers, v)
	}

	return vouchers
}

// Render returns the complete import document for txns.
func (r *Renderer) Render(txns []*domain.Transaction) string {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail.
	_ = r.Write(&buf, txns)
	return buf.String()
}

// Write streams the import document for txns to w.
func (r *Renderer) Write(w io.Writer, txns []*domain.Transaction) error {
	var buf bytes.Buffer

	for _, line := range envelopeHeader {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for _, v := range r.Vouchers(txns) {
		r.writeVoucher(&buf, v)
	}
	buf.WriteString(strings.Join(envelopeFooter, "\n"))

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

var envelopeHeader = []string{
	`<?xml version="1.0" encoding="UTF-8"?>`,
	`<ENVELOPE>`,
	`  <HEADER>`,
	`    <TALLYREQUEST>Import Data</TALLYREQUEST>`,
	`  </HEADER>`,
	`  <BODY>`,
	`    <IMPORTDATA>`,
	`      <REQUESTDESC>`,
	`        <REPORTNAME>Vouchers</REPORTNAME>`,
	`      </REQUESTDESC>`,
	`      <REQUESTDATA>`,
	`        <TALLYMESSAGE xmlns:UDF="TallyUDF">`,
}

var envelopeFooter = []string{
	`        </TALLYMESSAGE>`,
	`      </REQUESTDATA>`,
	`    </IMPORTDATA>`,
	`  </BODY>`,
	`</ENVELOPE>`,
}

func (r *Renderer) writeVoucher(buf *bytes.Buffer, v Voucher) {
	fmt.Fprintf(buf, "          <VOUCHER VCHTYPE=\"%s\" ACTION=\"Create\">\n", v.Type)
	fmt.Fprintf(buf, "            <DATE>%s</DATE>\n", v.Date)
	fmt.Fprintf(buf, "            <VOUCHERTYPENAME>%s</VOUCHERTYPENAME>\n", v.Type)
	fmt.Fprintf(buf, "            <NARRATION>%s</NARRATION>\n", escapeXML(v.Narration))
	fmt.Fprintf(buf, "            <REFERENCE>%s</REFERENCE>\n", escapeXML(v.Reference))

	// The bank leg carries the opposite sign of the assigned ledger leg.
	payment := v.IsPayment()
	writeLedgerEntry(buf, r.BankLedger.Name, payment, v.Amount)
	writeLedgerEntry(buf, v.Ledger.Name, !payment, v.Amount)

	buf.WriteString("          </VOUCHER>\n")
}

func writeLedgerEntry(buf *bytes.Buffer, name string, deemedPositive bool, amount string) {
	flag, sign := "No", ""
	if deemedPositive {
		flag, sign = "Yes", "-"
	}

	buf.WriteString("            <ALLLEDGERENTRIES.LIST>\n")
	fmt.Fprintf(buf, "              <LEDGERNAME>%s</LEDGERNAME>\n", escapeXML(name))
	fmt.Fprintf(buf, "              <ISDEEMEDPOSITIVE>%s</ISDEEMEDPOSITIVE>\n", flag)
	fmt.Fprintf(buf, "              <AMOUNT>%s%s</AMOUNT>\n", sign, escapeXML(amount))
	buf.WriteString("            </ALLLEDGERENTRIES.LIST>\n")
}

// escapeXML escapes special characters for XML text content.
func escapeXML(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		case '\'':
			buffer.WriteString("&apos;")
		default:
			buffer.WriteRune(r)
		}
	}

	return buffer.String()
}
