package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/lenderapi"
	"github.com/loangraph/reconciler/internal/reconcile"
	"github.com/shopspring/decimal"
)

type fakeAPI struct {
	mu sync.Mutex

	listResult *lenderapi.ListResult
	listErr    error
	resolveErr error
	block      chan struct{}

	listCalls    int
	confirmCalls []string
	rejectCalls  []string
	lastReason   string
}

func (f *fakeAPI) ListPending(_ context.Context, _, _ int) (*lenderapi.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResult, nil
}

func (f *fakeAPI) ConfirmPayment(ctx context.Context, loanID, paymentID, _ string) (*lenderapi.Resolution, error) {
	f.mu.Lock()
	f.confirmCalls = append(f.confirmCalls, loanID+"/"+paymentID)
	block, err := f.block, f.resolveErr
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &lenderapi.Resolution{LoanID: loanID, PaymentID: paymentID, Message: "ok"}, nil
}

func (f *fakeAPI) RejectPayment(_ context.Context, loanID, paymentID, reason string) (*lenderapi.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCalls = append(f.rejectCalls, loanID+"/"+paymentID)
	f.lastReason = reason
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &lenderapi.Resolution{LoanID: loanID, PaymentID: paymentID}, nil
}

func singleGroupListing() *lenderapi.ListResult {
	return &lenderapi.ListResult{
		Data: []payment.PendingLoanGroup{{
			LoanID: "L1",
			PendingPayments: []payment.PendingPayment{{
				PaymentID:     "P1",
				Amount:        decimal.NewFromInt(500),
				PaymentMode:   payment.ModeOnline,
				TransactionID: "T1",
			}},
		}},
		Pagination: payment.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: 1, ItemsPerPage: 10},
	}
}

func twoGroupListing() *lenderapi.ListResult {
	return &lenderapi.ListResult{Data: []payment.PendingLoanGroup{
		{LoanID: "L1", PendingPayments: []payment.PendingPayment{{PaymentID: "P1"}, {ID: "P2"}}},
		{ID: "L2", PendingPayments: []payment.PendingPayment{{PaymentID: "P3"}}},
	}}
}

func TestFetchPendingReplacesState(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)

	if _, err := store.FetchPending(context.Background(), 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	st := store.State()
	if len(st.PendingPayments) != 1 || st.Error != nil || st.Loading {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Pagination.TotalItems != 1 {
		t.Fatalf("expected pagination kept, got %+v", st.Pagination)
	}
}

func TestFetchPendingServerFaultDegradesToEmpty(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	if _, err := store.FetchPending(context.Background(), 1, 10); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	api.listErr = payment.NewError(payment.KindTransientServerFault, "list_pending", "", errors.New("status 500"))
	for i := 0; i < 2; i++ {
		res, err := store.FetchPending(context.Background(), 1, 10)
		if err != nil {
			t.Fatalf("attempt %d: expected no error, got %v", i, err)
		}
		if res == nil || len(res.Data) != 0 || !res.Degraded {
			t.Fatalf("attempt %d: expected degraded empty result, got %+v", i, res)
		}
		st := store.State()
		if len(st.PendingPayments) != 0 || st.Error != nil {
			t.Fatalf("attempt %d: expected empty non-error state, got %+v", i, st)
		}
	}
}

func TestFetchPendingOtherFailureSetsError(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	api.listErr = errors.New("connection refused")
	_, err := store.FetchPending(context.Background(), 1, 10)
	if !payment.IsKind(err, payment.KindNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	st := store.State()
	if st.Error == nil || len(st.PendingPayments) != 0 {
		t.Fatalf("expected error set and list cleared, got %+v", st)
	}
	if st.Pagination != (payment.Pagination{}) {
		t.Fatalf("expected pagination cleared with the list, got %+v", st.Pagination)
	}

	api.listErr = nil
	if _, err := store.FetchPending(context.Background(), 1, 10); err != nil {
		t.Fatalf("retry fetch: %v", err)
	}
	if store.State().Error != nil {
		t.Fatalf("expected error cleared on next attempt")
	}
}

func TestConfirmSinglePaymentRemovesGroup(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	out, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !out.Removed || out.AlreadyResolved {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	st := store.State()
	if len(st.PendingPayments) != 0 {
		t.Fatalf("expected group removed, got %+v", st.PendingPayments)
	}
	if st.Error != nil || st.Confirming {
		t.Fatalf("expected clean state, got %+v", st)
	}
	if len(api.confirmCalls) != 1 || api.confirmCalls[0] != "L1/P1" {
		t.Fatalf("unexpected confirm calls: %v", api.confirmCalls)
	}
}

func TestConfirmKeepsSiblingPayments(t *testing.T) {
	api := &fakeAPI{listResult: twoGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	if _, err := store.ConfirmPayment(context.Background(), payment.LoanRef{ID: "L1"}, payment.PaymentRef{ID: "P2"}, "ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	groups := store.Groups()
	if len(groups) != 2 || len(groups[0].PendingPayments) != 1 || groups[0].PendingPayments[0].PaymentID != "P1" {
		t.Fatalf("expected only P2 removed, got %+v", groups)
	}
}

func TestRejectBlankReasonNeverCallsNetwork(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	for _, reason := range []string{"", "   ", "\t\n"} {
		_, err := store.RejectPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, reason)
		if !payment.IsKind(err, payment.KindValidationFailure) {
			t.Fatalf("reason %q: expected validation failure, got %v", reason, err)
		}
	}
	if len(api.rejectCalls) != 0 {
		t.Fatalf("expected no network calls, got %v", api.rejectCalls)
	}
	if len(store.State().PendingPayments) != 1 {
		t.Fatalf("expected state untouched")
	}
}

func TestRejectMissingIdentifierLeavesState(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	_, err := store.RejectPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{}, "duplicate submission")
	if !payment.IsKind(err, payment.KindMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	st := store.State()
	if len(st.PendingPayments) != 1 || len(st.PendingPayments[0].PendingPayments) != 1 {
		t.Fatalf("expected no removal, got %+v", st.PendingPayments)
	}
	if st.Rejecting {
		t.Fatalf("expected rejecting reset")
	}
	if len(api.rejectCalls) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestConfirmMissingIdentifierLeavesState(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	_, err := store.ConfirmPayment(context.Background(), payment.LoanRef{}, payment.PaymentRef{PaymentID: "P1"}, "")
	if !payment.IsKind(err, payment.KindMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	st := store.State()
	if len(st.PendingPayments) != 1 || len(st.PendingPayments[0].PendingPayments) != 1 {
		t.Fatalf("expected no removal, got %+v", st.PendingPayments)
	}
	if st.Confirming {
		t.Fatalf("expected confirming reset")
	}
	if !payment.IsKind(st.Error, payment.KindMissingIdentifier) {
		t.Fatalf("expected error recorded in state, got %v", st.Error)
	}
	if len(api.confirmCalls) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestRejectSendsTrimmedReason(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	if _, err := store.RejectPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "  wrong amount "); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if api.lastReason != "wrong amount" {
		t.Fatalf("expected trimmed reason, got %q", api.lastReason)
	}
	if len(store.Groups()) != 0 {
		t.Fatalf("expected group removed")
	}
}

func TestFailedConfirmKeepsList(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing(), resolveErr: errors.New("socket hang up")}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	_, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
	if !payment.IsKind(err, payment.KindNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	st := store.State()
	if len(st.PendingPayments) != 1 || st.Error == nil || st.Confirming {
		t.Fatalf("expected list intact with error, got %+v", st)
	}
}

func TestNotFoundIsTreatedAsResolved(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing(), resolveErr: payment.NewError(payment.KindNotFound, "confirm_payment", "Payment not found", nil)}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	out, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
	if err != nil {
		t.Fatalf("expected not-found to be non-fatal, got %v", err)
	}
	if !out.AlreadyResolved || !out.Removed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if store.State().Error != nil {
		t.Fatalf("expected no error state")
	}
}

func TestConfirmInFlightGuard(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing(), block: make(chan struct{})}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	done := make(chan error, 1)
	go func() {
		_, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !store.State().Confirming {
		if time.Now().After(deadline) {
			t.Fatalf("confirm never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := store.RejectPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "double tap")
	if !payment.IsKind(err, payment.KindInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(api.rejectCalls) != 0 {
		t.Fatalf("expected guarded reject to skip network")
	}
}

func TestConfirmTimeout(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing(), block: make(chan struct{})}
	store := reconcile.NewStore(api, reconcile.WithActionTimeout(20*time.Millisecond))
	_, _ = store.FetchPending(context.Background(), 1, 10)

	_, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
	if !payment.IsKind(err, payment.KindTimeoutFailure) {
		t.Fatalf("expected timeout failure, got %v", err)
	}
	st := store.State()
	if st.Confirming || len(st.PendingPayments) != 1 {
		t.Fatalf("expected list intact after timeout, got %+v", st)
	}
	close(api.block)
}

func TestListenerSeesTransitions(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	var events []reconcile.EventType
	store := reconcile.NewStore(api, reconcile.WithListener(func(ev reconcile.Event) {
		events = append(events, ev.Type)
	}))

	_, _ = store.FetchPending(context.Background(), 1, 10)
	_, _ = store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")

	want := []reconcile.EventType{reconcile.EventLoading, reconcile.EventFetched, reconcile.EventConfirming, reconcile.EventConfirmed}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestStateIsACopy(t *testing.T) {
	api := &fakeAPI{listResult: twoGroupListing()}
	store := reconcile.NewStore(api)
	_, _ = store.FetchPending(context.Background(), 1, 10)

	st := store.State()
	st.PendingPayments[0].PendingPayments = nil
	if len(store.State().PendingPayments[0].PendingPayments) != 2 {
		t.Fatalf("mutating a snapshot must not change the store")
	}
}

func TestListenerDeliveryFollowsTransitionOrder(t *testing.T) {
	api := &fakeAPI{listResult: singleGroupListing()}
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu     sync.Mutex
		events []reconcile.Event
		once   sync.Once
	)
	store := reconcile.NewStore(api, reconcile.WithListener(func(ev reconcile.Event) {
		if ev.Type == reconcile.EventConfirming {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	_, _ = store.FetchPending(context.Background(), 1, 10)

	confirmed := make(chan error, 1)
	go func() {
		_, err := store.ConfirmPayment(context.Background(), payment.LoanRef{LoanID: "L1"}, payment.PaymentRef{PaymentID: "P1"}, "")
		confirmed <- err
	}()
	<-entered

	fetched := make(chan error, 1)
	go func() {
		_, err := store.FetchPending(context.Background(), 1, 10)
		fetched <- err
	}()
	time.Sleep(30 * time.Millisecond)

	api.mu.Lock()
	calls := api.listCalls
	api.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected refresh held behind the pending announcement, got %d listing calls", calls)
	}
	if store.State().Loading {
		t.Fatalf("expected refresh not yet applied while an earlier snapshot is undelivered")
	}

	close(release)
	if err := <-confirmed; err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := <-fetched; err != nil {
		t.Fatalf("fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 3 || events[2].Type != reconcile.EventConfirming {
		t.Fatalf("unexpected event order: %+v", events)
	}
	if events[2].State.Loading {
		t.Fatalf("confirming snapshot must predate the refresh")
	}
}
