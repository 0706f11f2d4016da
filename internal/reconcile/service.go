package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loangraph/reconciler/internal/domain/payment"
)

var ErrNoSession = errors.New("no_reconciliation_session")

// Publisher receives every state change of a lender's session.
type Publisher interface {
	Publish(lenderID string, ev Event)
}

type ServiceOptions struct {
	ActionTimeout time.Duration
	DefaultLimit  int
}

type session struct {
	id          string
	store       *Store
	page        int
	limit       int
	openedAt    time.Time
	fingerprint string
}

// Service owns one Store per open lender screen. Screens never share or edit
// each other's state; focus and pull-to-refresh rebuild it through Open.
type Service struct {
	api       API
	mirror    payment.SnapshotRepository
	publisher Publisher
	logger    *slog.Logger
	opts      ServiceOptions
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(api API, mirror payment.SnapshotRepository, publisher Publisher, logger *slog.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	return &Service{
		api:       api,
		mirror:    mirror,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		sessions:  map[string]*session{},
	}
}

// Open discards any previous state for the lender and fetches from scratch.
func (s *Service) Open(ctx context.Context, lenderID string, page, limit int) (State, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	sess := &session{id: uuid.NewString(), page: page, limit: limit, openedAt: s.now()}
	sess.store = NewStore(s.api,
		WithActionTimeout(s.opts.ActionTimeout),
		WithStoreLogger(s.logger.With("lender_id", lenderID, "session_id", sess.id)),
		WithListener(s.listenerFor(lenderID, sess)),
	)

	s.mu.Lock()
	s.sessions[lenderID] = sess
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "reconciliation session opened", "lender_id", lenderID, "session_id", sess.id, "page", page, "limit", limit)

	err := s.fetch(ctx, lenderID, sess)
	return sess.store.State(), err
}

func (s *Service) Close(lenderID string) {
	s.mu.Lock()
	sess, ok := s.sessions[lenderID]
	delete(s.sessions, lenderID)
	s.mu.Unlock()
	if ok {
		s.logger.Info("reconciliation session closed", "lender_id", lenderID, "session_id", sess.id)
	}
}

func (s *Service) State(lenderID string) (State, bool) {
	sess, ok := s.session(lenderID)
	if !ok {
		return State{}, false
	}
	return sess.store.State(), true
}

// Refresh refetches the session's current page.
func (s *Service) Refresh(ctx context.Context, lenderID string) (State, error) {
	sess, ok := s.session(lenderID)
	if !ok {
		return State{}, ErrNoSession
	}
	err := s.fetch(ctx, lenderID, sess)
	return sess.store.State(), err
}

// Confirm resolves the payment and then reconciles against the server. The
// refetch result lands in state; only the confirm outcome is returned.
func (s *Service) Confirm(ctx context.Context, lenderID string, loan payment.LoanRef, pay payment.PaymentRef, notes string) (*Outcome, State, error) {
	sess, ok := s.session(lenderID)
	if !ok {
		return nil, State{}, ErrNoSession
	}
	out, err := sess.store.ConfirmPayment(ctx, loan, pay, notes)
	if err != nil {
		return nil, sess.store.State(), err
	}
	s.refetchAfterResolution(ctx, lenderID, sess)
	return out, sess.store.State(), nil
}

func (s *Service) Reject(ctx context.Context, lenderID string, loan payment.LoanRef, pay payment.PaymentRef, reason string) (*Outcome, State, error) {
	sess, ok := s.session(lenderID)
	if !ok {
		return nil, State{}, ErrNoSession
	}
	out, err := sess.store.RejectPayment(ctx, loan, pay, reason)
	if err != nil {
		return nil, sess.store.State(), err
	}
	s.refetchAfterResolution(ctx, lenderID, sess)
	return out, sess.store.State(), nil
}

// Mirrored returns the last listing saved for the lender, if mirroring is on.
func (s *Service) Mirrored(ctx context.Context, lenderID string) (*payment.Snapshot, error) {
	if s.mirror == nil {
		return nil, payment.ErrSnapshotNotFound
	}
	return s.mirror.Load(ctx, lenderID)
}

func (s *Service) refetchAfterResolution(ctx context.Context, lenderID string, sess *session) {
	if err := s.fetch(ctx, lenderID, sess); err != nil {
		s.logger.WarnContext(ctx, "refetch after resolution failed", "lender_id", lenderID, "err", err)
	}
}

func (s *Service) fetch(ctx context.Context, lenderID string, sess *session) error {
	res, err := sess.store.FetchPending(ctx, sess.page, sess.limit)
	if err != nil {
		return err
	}
	if res.Degraded {
		return nil
	}
	s.mirrorListing(ctx, lenderID, sess, res.Data, res.Pagination)
	return nil
}

func (s *Service) mirrorListing(ctx context.Context, lenderID string, sess *session, groups []payment.PendingLoanGroup, p payment.Pagination) {
	if s.mirror == nil {
		return
	}
	fp := payment.Fingerprint(groups, p)
	s.mu.Lock()
	unchanged := sess.fingerprint == fp
	s.mu.Unlock()
	if unchanged {
		return
	}
	snap := payment.Snapshot{
		LenderID:    lenderID,
		Groups:      payment.Clone(groups),
		Pagination:  p,
		FetchedAt:   s.now(),
		Fingerprint: fp,
	}
	if err := s.mirror.Save(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "mirror save failed", "lender_id", lenderID, "err", err)
		return
	}
	s.mu.Lock()
	sess.fingerprint = fp
	s.mu.Unlock()
}

func (s *Service) session(lenderID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[lenderID]
	return sess, ok
}

// listenerFor publishes only while sess is still the lender's current session,
// so a replaced screen's late responses never reach the UI.
func (s *Service) listenerFor(lenderID string, sess *session) Listener {
	return func(ev Event) {
		if s.publisher == nil {
			return
		}
		if cur, ok := s.session(lenderID); !ok || cur != sess {
			return
		}
		s.publisher.Publish(lenderID, ev)
	}
}
