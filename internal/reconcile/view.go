package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/format"
	"github.com/loangraph/reconciler/internal/lenderapi"
	"github.com/shopspring/decimal"
)

type PaymentView struct {
	PaymentID         string     `json:"paymentId"`
	Amount            string     `json:"amount"`
	AmountValue       string     `json:"amountValue"`
	PaymentType       string     `json:"paymentType"`
	TypeLabel         string     `json:"typeLabel"`
	InstallmentNumber int        `json:"installmentNumber,omitempty"`
	PaymentMode       string     `json:"paymentMode"`
	ModeLabel         string     `json:"modeLabel"`
	TransactionID     string     `json:"transactionId,omitempty"`
	Date              *time.Time `json:"date,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	ProofURL          string     `json:"proofUrl,omitempty"`
}

type GroupView struct {
	LoanID          string        `json:"loanId"`
	BorrowerName    string        `json:"borrowerName"`
	BorrowerMobile  string        `json:"borrowerMobile,omitempty"`
	BorrowerAadhaar string        `json:"borrowerAadhaar,omitempty"`
	TotalLoanAmount string        `json:"totalLoanAmount"`
	TotalPaid       string        `json:"totalPaid"`
	RemainingAmount string        `json:"remainingAmount"`
	PendingAmount   string        `json:"pendingAmount"`
	Payments        []PaymentView `json:"payments"`
}

// View is what the reconciliation screen renders.
type View struct {
	Groups       []GroupView        `json:"groups"`
	Pagination   payment.Pagination `json:"pagination"`
	PendingCount int                `json:"pendingCount"`
	Loading      bool               `json:"loading"`
	Confirming   bool               `json:"confirming"`
	Rejecting    bool               `json:"rejecting"`
	Error        string             `json:"error,omitempty"`
	ErrorKind    string             `json:"errorKind,omitempty"`
	FetchedAt    *time.Time         `json:"fetchedAt,omitempty"`
}

type Projector struct {
	formatter format.Formatter
	proofs    lenderapi.ProofResolver
	logger    *slog.Logger
}

func NewProjector(formatter format.Formatter, proofs lenderapi.ProofResolver, logger *slog.Logger) Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return Projector{formatter: formatter, proofs: proofs, logger: logger}
}

func (p Projector) Build(st State) View {
	v := View{
		Groups:     []GroupView{},
		Pagination: st.Pagination,
		Loading:    st.Loading,
		Confirming: st.Confirming,
		Rejecting:  st.Rejecting,
	}
	if st.Error != nil {
		v.Error = payment.UserMessage(st.Error)
		v.ErrorKind = string(payment.KindOf(st.Error))
	}
	if !st.FetchedAt.IsZero() {
		at := st.FetchedAt
		v.FetchedAt = &at
	}

	for _, g := range payment.Visible(st.PendingPayments) {
		gv := p.group(g)
		v.PendingCount += len(gv.Payments)
		v.Groups = append(v.Groups, gv)
	}
	return v
}

func (p Projector) group(g payment.PendingLoanGroup) GroupView {
	loanID, _ := g.Ref().Resolve()
	gv := GroupView{
		LoanID:          loanID,
		BorrowerName:    g.BorrowerName,
		BorrowerMobile:  g.BorrowerMobile,
		BorrowerAadhaar: g.BorrowerAadhaar,
		TotalLoanAmount: p.formatter.Format(g.TotalLoanAmount),
		TotalPaid:       p.formatter.Format(g.TotalPaid),
		RemainingAmount: p.formatter.Format(g.RemainingAmount),
		Payments:        make([]PaymentView, 0, len(g.PendingPayments)),
	}
	if gv.BorrowerName == "" {
		gv.BorrowerName = "Unknown borrower"
	}

	pending := decimal.Zero
	for _, pay := range g.PendingPayments {
		if err := pay.Validate(); err != nil {
			p.logger.Warn("malformed pending payment", "loan_id", loanID, "payment", pay.Ref(), "err", err)
		}
		pending = pending.Add(pay.Amount)
		gv.Payments = append(gv.Payments, p.payment(pay))
	}
	gv.PendingAmount = p.formatter.Format(pending)
	return gv
}

func (p Projector) payment(pay payment.PendingPayment) PaymentView {
	id, _ := pay.Ref().Resolve()
	pv := PaymentView{
		PaymentID:         id,
		Amount:            p.formatter.Format(pay.Amount),
		AmountValue:       pay.Amount.String(),
		PaymentType:       string(pay.PaymentType),
		InstallmentNumber: pay.InstallmentNumber,
		PaymentMode:       string(pay.PaymentMode),
		Date:              pay.EffectiveDate(),
		Notes:             pay.Notes,
		ProofURL:          p.proofs.Resolve(pay.PaymentProof),
	}

	switch pay.PaymentType {
	case payment.TypeInstallment:
		pv.TypeLabel = "Installment"
		if pay.InstallmentNumber > 0 {
			pv.TypeLabel = fmt.Sprintf("Installment #%d", pay.InstallmentNumber)
		}
	default:
		pv.TypeLabel = "One-time"
	}

	switch pay.PaymentMode {
	case payment.ModeOnline:
		pv.ModeLabel = "Online"
		pv.TransactionID = pay.TransactionID
	default:
		pv.ModeLabel = "Cash"
	}
	return pv
}
