package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOneTime     Type = "one-time"
	TypeInstallment Type = "installment"
)

type Mode string

const (
	ModeCash   Mode = "cash"
	ModeOnline Mode = "online"
)

const StatusPending = "pending"

// PendingPayment is a borrower-submitted payment awaiting the lender's decision.
type PendingPayment struct {
	PaymentID         string          `json:"paymentId,omitempty"`
	ID                string          `json:"_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	PaymentType       Type            `json:"paymentType,omitempty"`
	InstallmentNumber int             `json:"installmentNumber,omitempty"`
	PaymentMode       Mode            `json:"paymentMode,omitempty"`
	TransactionID     string          `json:"transactionId,omitempty"`
	PaymentDate       *time.Time      `json:"paymentDate,omitempty"`
	SubmittedAt       *time.Time      `json:"submittedAt,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	PaymentProof      string          `json:"paymentProof,omitempty"`
	Status            string          `json:"status,omitempty"`
}

// PendingLoanGroup holds the pending payments of one loan, in server order.
type PendingLoanGroup struct {
	LoanID          string           `json:"loanId,omitempty"`
	ID              string           `json:"_id,omitempty"`
	BorrowerName    string           `json:"borrowerName,omitempty"`
	BorrowerMobile  string           `json:"borrowerMobile,omitempty"`
	BorrowerAadhaar string           `json:"borrowerAadhaar,omitempty"`
	TotalLoanAmount decimal.Decimal  `json:"totalLoanAmount"`
	TotalPaid       decimal.Decimal  `json:"totalPaid"`
	RemainingAmount decimal.Decimal  `json:"remainingAmount"`
	PendingPayments []PendingPayment `json:"pendingPayments"`
}

type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

func (p PendingPayment) Ref() PaymentRef {
	return PaymentRef{PaymentID: p.PaymentID, ID: p.ID}
}

func (g PendingLoanGroup) Ref() LoanRef {
	return LoanRef{LoanID: g.LoanID, ID: g.ID}
}

// EffectiveDate is paymentDate, falling back to submittedAt.
func (p PendingPayment) EffectiveDate() *time.Time {
	if p.PaymentDate != nil && !p.PaymentDate.IsZero() {
		return p.PaymentDate
	}
	return p.SubmittedAt
}

func (p PendingPayment) Validate() error {
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	switch p.PaymentType {
	case TypeInstallment:
		if p.InstallmentNumber <= 0 {
			return fmt.Errorf("installment payment requires a positive installment number")
		}
	case TypeOneTime, "":
	default:
		return fmt.Errorf("unknown payment type %q", p.PaymentType)
	}
	switch p.PaymentMode {
	case ModeOnline:
		if strings.TrimSpace(p.TransactionID) == "" {
			return fmt.Errorf("online payment requires a transaction id")
		}
	case ModeCash, "":
	default:
		return fmt.Errorf("unknown payment mode %q", p.PaymentMode)
	}
	return nil
}

// Visible drops groups that have no pending payments left.
func Visible(groups []PendingLoanGroup) []PendingLoanGroup {
	out := make([]PendingLoanGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.PendingPayments) == 0 {
			continue
		}
		out = append(out, g)
	}
	return out
}

// RemovePayment returns a copy of groups without the matching payment. A group
// left with no payments is dropped. The bool reports whether anything matched.
func RemovePayment(groups []PendingLoanGroup, loan LoanRef, pay PaymentRef) ([]PendingLoanGroup, bool) {
	out := make([]PendingLoanGroup, 0, len(groups))
	removed := false
	for _, g := range groups {
		if removed || !SameLoan(g.Ref(), loan) {
			out = append(out, g)
			continue
		}
		kept := make([]PendingPayment, 0, len(g.PendingPayments))
		for _, p := range g.PendingPayments {
			if !removed && SamePayment(p.Ref(), pay) {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			continue
		}
		g.PendingPayments = kept
		out = append(out, g)
	}
	return out, removed
}

// Clone deep-copies the group list so callers can't alias store state.
func Clone(groups []PendingLoanGroup) []PendingLoanGroup {
	if groups == nil {
		return []PendingLoanGroup{}
	}
	out := make([]PendingLoanGroup, len(groups))
	for i, g := range groups {
		g.PendingPayments = append([]PendingPayment(nil), g.PendingPayments...)
		if g.PendingPayments == nil {
			g.PendingPayments = []PendingPayment{}
		}
		out[i] = g
	}
	return out
}
