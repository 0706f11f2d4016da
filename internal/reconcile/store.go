// Package reconcile holds the lender's pending-payment state for one screen
// session and applies the listing, confirm and reject transitions to it.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/lenderapi"
)

const (
	opFetch   = "fetch_pending"
	opConfirm = "confirm_payment"
	opReject  = "reject_payment"

	DefaultActionTimeout = 15 * time.Second
)

// API is the remote loan/payment service.
type API interface {
	ListPending(ctx context.Context, page, limit int) (*lenderapi.ListResult, error)
	ConfirmPayment(ctx context.Context, loanID, paymentID, notes string) (*lenderapi.Resolution, error)
	RejectPayment(ctx context.Context, loanID, paymentID, reason string) (*lenderapi.Resolution, error)
}

// State mirrors the last successful listing plus the busy flags.
type State struct {
	PendingPayments []payment.PendingLoanGroup
	Pagination      payment.Pagination
	Loading         bool
	Confirming      bool
	Rejecting       bool
	Error           error
	FetchedAt       time.Time
}

type EventType string

const (
	EventLoading      EventType = "loading"
	EventFetched      EventType = "fetched"
	EventFetchFailed  EventType = "fetch_failed"
	EventConfirming   EventType = "confirming"
	EventConfirmed    EventType = "confirmed"
	EventRejecting    EventType = "rejecting"
	EventRejected     EventType = "rejected"
	EventActionFailed EventType = "action_failed"
)

type Event struct {
	Type      EventType
	LoanID    string
	PaymentID string
	State     State
}

type Listener func(Event)

// Outcome reports a finished confirm or reject.
type Outcome struct {
	LoanID          string `json:"loanId"`
	PaymentID       string `json:"paymentId"`
	Removed         bool   `json:"removed"`
	AlreadyResolved bool   `json:"alreadyResolved"`
	Message         string `json:"message,omitempty"`
}

type Store struct {
	api      API
	timeout  time.Duration
	listener Listener
	logger   *slog.Logger
	now      func() time.Time

	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	loading    int
	confirming int
	rejecting  int
	inflight   map[string]struct{}
}

type StoreOption func(*Store)

func WithActionTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithListener(l Listener) StoreOption {
	return func(s *Store) { s.listener = l }
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(api API, opts ...StoreOption) *Store {
	s := &Store{
		api:      api,
		timeout:  DefaultActionTimeout,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		state:    State{PendingPayments: []payment.PendingLoanGroup{}},
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the full cache, empty groups included.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Groups is the render set: only loans that still have pending payments.
func (s *Store) Groups() []payment.PendingLoanGroup {
	return payment.Visible(s.State().PendingPayments)
}

// FetchPending replaces the cache with one page from the server. A 500 from the
// listing endpoint is treated as an empty result, not an error.
func (s *Store) FetchPending(ctx context.Context, page, limit int) (*lenderapi.ListResult, error) {
	s.commit(func() Event {
		s.loading++
		s.state.Error = nil
		return Event{Type: EventLoading}
	})

	callCtx, cancel := s.bounded(ctx)
	res, err := s.api.ListPending(callCtx, page, limit)
	cancel()

	s.commit(func() Event {
		s.loading--
		switch {
		case err == nil:
			s.state.PendingPayments = payment.Clone(res.Data)
			s.state.Pagination = res.Pagination
			s.state.Error = nil
			s.state.FetchedAt = s.now()
		case payment.IsKind(err, payment.KindTransientServerFault):
			s.logger.WarnContext(ctx, "pending listing returned server fault, showing empty list", "err", err)
			res = &lenderapi.ListResult{Data: []payment.PendingLoanGroup{}, Degraded: true}
			s.state.PendingPayments = []payment.PendingLoanGroup{}
			s.state.Pagination = payment.Pagination{}
			s.state.Error = nil
			s.state.FetchedAt = s.now()
			err = nil
		default:
			err = normalize(opFetch, err)
			s.state.PendingPayments = []payment.PendingLoanGroup{}
			s.state.Pagination = payment.Pagination{}
			s.state.Error = err
			return Event{Type: EventFetchFailed}
		}
		return Event{Type: EventFetched}
	})

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ConfirmPayment(ctx context.Context, loan payment.LoanRef, pay payment.PaymentRef, notes string) (*Outcome, error) {
	return s.resolve(ctx, opConfirm, loan, pay, func(ctx context.Context, loanID, paymentID string) (*lenderapi.Resolution, error) {
		return s.api.ConfirmPayment(ctx, loanID, paymentID, notes)
	})
}

// RejectPayment requires a non-blank reason before anything else is checked.
func (s *Store) RejectPayment(ctx context.Context, loan payment.LoanRef, pay payment.PaymentRef, reason string) (*Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		err := payment.NewError(payment.KindValidationFailure, opReject, "Please provide a reason for rejection.", nil)
		s.fail(opReject, "", "", err)
		return nil, err
	}
	return s.resolve(ctx, opReject, loan, pay, func(ctx context.Context, loanID, paymentID string) (*lenderapi.Resolution, error) {
		return s.api.RejectPayment(ctx, loanID, paymentID, strings.TrimSpace(reason))
	})
}

type resolveFunc func(ctx context.Context, loanID, paymentID string) (*lenderapi.Resolution, error)

func (s *Store) resolve(ctx context.Context, op string, loan payment.LoanRef, pay payment.PaymentRef, call resolveFunc) (*Outcome, error) {
	loanID, okLoan := loan.Resolve()
	paymentID, okPay := pay.Resolve()
	if !okLoan || !okPay {
		s.logger.WarnContext(ctx, "unresolvable payment identity", "op", op, "loan", loan, "payment", pay)
		err := payment.NewError(payment.KindMissingIdentifier, op, "Unable to identify the loan or payment.", nil)
		s.fail(op, loanID, paymentID, err)
		return nil, err
	}

	var busyErr error
	s.commit(func() Event {
		if _, busy := s.inflight[paymentID]; busy {
			busyErr = payment.NewError(payment.KindInFlight, op, "This payment is already being processed.", nil)
			return Event{}
		}
		s.inflight[paymentID] = struct{}{}
		s.adjustBusyLocked(op, 1)
		s.state.Error = nil
		return Event{Type: startedEvent(op), LoanID: loanID, PaymentID: paymentID}
	})
	if busyErr != nil {
		return nil, busyErr
	}

	callCtx, cancel := s.bounded(ctx)
	res, err := call(callCtx, loanID, paymentID)
	cancel()

	out := &Outcome{LoanID: loanID, PaymentID: paymentID}
	switch {
	case err == nil:
		if res != nil {
			out.Message = res.Message
		}
	case payment.IsKind(err, payment.KindNotFound):
		// Resolved by another session; the server no longer lists it.
		s.logger.InfoContext(ctx, "payment already resolved upstream", "op", op, "loan_id", loanID, "payment_id", paymentID)
		out.AlreadyResolved = true
		err = nil
	}

	s.commit(func() Event {
		delete(s.inflight, paymentID)
		s.adjustBusyLocked(op, -1)
		if err != nil {
			err = normalize(op, err)
			s.state.Error = err
			return Event{Type: EventActionFailed, LoanID: loanID, PaymentID: paymentID}
		}
		s.state.PendingPayments, out.Removed = payment.RemovePayment(s.state.PendingPayments, loan, pay)
		s.state.Error = nil
		return Event{Type: finishedEvent(op), LoanID: loanID, PaymentID: paymentID}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) fail(op, loanID, paymentID string, err error) {
	s.commit(func() Event {
		s.state.Error = err
		return Event{Type: EventActionFailed, LoanID: loanID, PaymentID: paymentID}
	})
}

func (s *Store) adjustBusyLocked(op string, delta int) {
	switch op {
	case opConfirm:
		s.confirming += delta
	case opReject:
		s.rejecting += delta
	}
}

func (s *Store) snapshotLocked() State {
	out := s.state
	out.PendingPayments = payment.Clone(s.state.PendingPayments)
	out.Loading = s.loading > 0
	out.Confirming = s.confirming > 0
	out.Rejecting = s.rejecting > 0
	return out
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// commit applies one transition under the state lock and hands its snapshot
// to the listener. emitMu spans both steps so listeners observe snapshots in
// the order they were taken. A zero Event type means nothing to announce.
// Listeners must not call back into transitions.
func (s *Store) commit(apply func() Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	ev := apply()
	ev.State = s.snapshotLocked()
	s.mu.Unlock()

	if ev.Type != "" && s.listener != nil {
		s.listener(ev)
	}
}

func startedEvent(op string) EventType {
	if op == opReject {
		return EventRejecting
	}
	return EventConfirming
}

func finishedEvent(op string) EventType {
	if op == opReject {
		return EventRejected
	}
	return EventConfirmed
}

// normalize makes sure every stored error carries a kind.
func normalize(op string, err error) error {
	var typed *payment.Error
	if errors.As(err, &typed) {
		return err
	}
	kind := payment.KindOf(err)
	msg := ""
	if kind == payment.KindTimeoutFailure {
		msg = "The request timed out. Please try again."
	}
	return payment.NewError(kind, op, msg, err)
}
