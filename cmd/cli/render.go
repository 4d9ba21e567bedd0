package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/tallysync/internal/domain"
	"github.com/dvloznov/tallysync/internal/statement"
	"github.com/dvloznov/tallysync/internal/store"
	"github.com/dvloznov/tallysync/internal/store/inmemory"
	"github.com/dvloznov/tallysync/internal/voucher"
)

var (
	renderOutput string
	renderLedger int
)

var renderCmd = &cobra.Command{
	Use:   "render <statement.json|statement.xlsx>",
	Short: "Render a statement file as voucher XML",
	Long: `Render parses a statement file and writes the voucher XML to stdout or
--output. Every transaction is posted against --ledger (default Suspense
Account).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		txns, err := loadStatement(cmd.Context(), args[0], renderLedger)
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if renderOutput != "" {
			f, err := os.Create(renderOutput)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			defer f.Close()
			out = f
		}

		renderer := voucher.NewRenderer()
		if err := renderer.Write(out, txns); err != nil {
			return fmt.Errorf("render: %w", err)
		}

		totals := statement.Sum(txns)
		log.Info().
			Int("transactions", len(txns)).
			Int("vouchers", len(renderer.Vouchers(txns))).
			Str("debit", totals.Debit.StringFixed(2)).
			Str("credit", totals.Credit.StringFixed(2)).
			Msg("Rendered statement")
		if renderOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", renderOutput)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write XML to this file instead of stdout")
	renderCmd.Flags().IntVar(&renderLedger, "ledger", domain.DefaultLedgerID, "ledger id assigned to every transaction")
}

// loadStatement parses path into a throwaway store so transactions get the
// same ids and ledger defaults as an upload to the export service.
func loadStatement(ctx context.Context, path string, ledgerID int) ([]*domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadStatement: %w", err)
	}
	defer f.Close()

	records, err := statement.Parse(path, f)
	if err != nil {
		return nil, fmt.Errorf("loadStatement: %w", err)
	}

	st := inmemory.NewStore()
	id, err := st.Upload(ctx, store.Upload{
		Filename:     path,
		Transactions: records.Transactions,
		Summary:      records.Summary,
	})
	if err != nil {
		return nil, fmt.Errorf("loadStatement: %w", err)
	}

	txns, err := st.Transactions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loadStatement: %w", err)
	}
	if ledgerID != domain.DefaultLedgerID {
		for _, txn := range txns {
			if err := st.AssignLedger(ctx, txn.ID, ledgerID); err != nil {
				return nil, fmt.Errorf("loadStatement: %w", err)
			}
		}
		return st.Transactions(ctx, id)
	}
	return txns, nil
}
