// Command reconcile lets an operator list, confirm and reject a lender's
// pending payments against the loan service without the app.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/loangraph/reconciler/internal/config"
	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/format"
	"github.com/loangraph/reconciler/internal/lenderapi"
	"github.com/loangraph/reconciler/internal/observability"
	"github.com/loangraph/reconciler/internal/reconcile"
)

const usage = `usage: reconcile <command> [flags]

commands:
  list     show pending payments grouped by loan
  confirm  confirm a pending payment (-loan, -payment, optional -notes)
  reject   reject a pending payment (-loan, -payment, -reason)
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg := config.Load()

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("api", cfg.LenderAPIBaseURL, "lender API base URL")
	token := fs.String("token", cfg.LenderAPIToken, "bearer token for the lender API")
	page := fs.Int("page", 1, "page to list")
	limit := fs.Int("limit", int(cfg.DefaultPageLimit), "page size")
	loanID := fs.String("loan", "", "loan id")
	paymentID := fs.String("payment", "", "payment id")
	notes := fs.String("notes", "", "confirmation notes")
	reason := fs.String("reason", "", "rejection reason")
	asJSON := fs.Bool("json", false, "print the view as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	logger := observability.NewLoggerTo(stderr, cfg.Env, level)
	client := lenderapi.NewClient(*baseURL, cfg.RequestTimeout,
		lenderapi.WithLogger(logger),
		lenderapi.WithTokenSource(lenderapi.StaticToken(*token)),
	)
	store := reconcile.NewStore(client, reconcile.WithActionTimeout(cfg.ActionTimeout), reconcile.WithStoreLogger(logger))
	projector := reconcile.NewProjector(
		format.NewFormatter(cfg.Locale, cfg.CurrencySymbol),
		lenderapi.NewProofResolver(assetBase(cfg, *baseURL), cfg.APIPathSuffix),
		logger,
	)

	loan := payment.LoanRef{LoanID: *loanID}
	pay := payment.PaymentRef{PaymentID: *paymentID}

	// The action's outcome decides the exit code; a failed refetch afterwards
	// only leaves the printed list stale.
	refetch := func() {
		if _, ferr := store.FetchPending(ctx, *page, *limit); ferr != nil {
			logger.WarnContext(ctx, "refetch after resolution failed", "command", args[0], "err", ferr)
			fmt.Fprintf(stderr, "warning: could not reload pending payments: %s\n", payment.UserMessage(ferr))
		}
	}

	var err error
	switch args[0] {
	case "list":
		_, err = store.FetchPending(ctx, *page, *limit)
	case "confirm":
		var out *reconcile.Outcome
		if out, err = store.ConfirmPayment(ctx, loan, pay, *notes); err == nil {
			printOutcome(stdout, "confirmed", out)
			refetch()
		}
	case "reject":
		var out *reconcile.Outcome
		if out, err = store.RejectPayment(ctx, loan, pay, *reason); err == nil {
			printOutcome(stdout, "rejected", out)
			refetch()
		}
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s (%s)\n", args[0], payment.UserMessage(err), payment.KindOf(err))
		return 1
	}

	view := projector.Build(store.State())
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(view)
		return 0
	}
	printView(stdout, view)
	return 0
}

// assetBase follows -api unless ASSET_BASE_URL was set explicitly.
func assetBase(cfg config.Config, apiBase string) string {
	if cfg.AssetBaseURL != cfg.LenderAPIBaseURL {
		return cfg.AssetBaseURL
	}
	return apiBase
}

func printOutcome(w io.Writer, verb string, out *reconcile.Outcome) {
	if out.AlreadyResolved {
		fmt.Fprintf(w, "payment %s on loan %s was already resolved\n", out.PaymentID, out.LoanID)
		return
	}
	msg := out.Message
	if msg == "" {
		msg = "payment " + verb
	}
	fmt.Fprintf(w, "%s (loan %s, payment %s)\n", msg, out.LoanID, out.PaymentID)
}

func printView(w io.Writer, v reconcile.View) {
	if len(v.Groups) == 0 {
		fmt.Fprintln(w, "no pending payments")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, g := range v.Groups {
		fmt.Fprintf(tw, "%s\t%s\tpaid %s of %s\tpending %s\n", g.LoanID, g.BorrowerName, g.TotalPaid, g.TotalLoanAmount, g.PendingAmount)
		for _, p := range g.Payments {
			line := []string{"", p.PaymentID, p.Amount, p.TypeLabel, p.ModeLabel}
			if p.TransactionID != "" {
				line = append(line, "txn "+p.TransactionID)
			}
			if p.Date != nil {
				line = append(line, p.Date.Format("02 Jan 2006"))
			}
			fmt.Fprintln(tw, strings.Join(line, "\t"))
		}
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d pending on page %d of %d\n", v.PendingCount, v.Pagination.CurrentPage, v.Pagination.TotalPages)
}
