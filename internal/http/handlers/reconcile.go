package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/reconcile"
)

type ReconcileService interface {
	Open(ctx context.Context, lenderID string, page, limit int) (reconcile.State, error)
	Close(lenderID string)
	State(lenderID string) (reconcile.State, bool)
	Refresh(ctx context.Context, lenderID string) (reconcile.State, error)
	Confirm(ctx context.Context, lenderID string, loan payment.LoanRef, pay payment.PaymentRef, notes string) (*reconcile.Outcome, reconcile.State, error)
	Reject(ctx context.Context, lenderID string, loan payment.LoanRef, pay payment.PaymentRef, reason string) (*reconcile.Outcome, reconcile.State, error)
	Mirrored(ctx context.Context, lenderID string) (*payment.Snapshot, error)
}

type ReconcileHandler struct {
	service   ReconcileService
	projector reconcile.Projector
}

func NewReconcileHandler(service ReconcileService, projector reconcile.Projector) *ReconcileHandler {
	return &ReconcileHandler{service: service, projector: projector}
}

type confirmRequest struct {
	Loan    payment.LoanRef    `json:"loan"`
	Payment payment.PaymentRef `json:"payment"`
	Notes   string             `json:"notes"`
}

type rejectRequest struct {
	Loan    payment.LoanRef    `json:"loan"`
	Payment payment.PaymentRef `json:"payment"`
	Reason  string             `json:"reason"`
}

func (h *ReconcileHandler) OpenSession(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("page", "1")))
	limit, _ := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("limit", "0")))

	st, err := h.service.Open(c.Request.Context(), lenderID, page, limit)
	if err != nil {
		h.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, h.projector.Build(st))
}

func (h *ReconcileHandler) CloseSession(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	h.service.Close(lenderID)
	c.Status(http.StatusNoContent)
}

func (h *ReconcileHandler) Pending(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	st, found := h.service.State(lenderID)
	if !found {
		h.fail(c, reconcile.ErrNoSession, nil)
		return
	}
	c.JSON(http.StatusOK, h.projector.Build(st))
}

func (h *ReconcileHandler) Refresh(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	st, err := h.service.Refresh(c.Request.Context(), lenderID)
	if err != nil {
		h.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, h.projector.Build(st))
}

func (h *ReconcileHandler) Confirm(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	out, st, err := h.service.Confirm(c.Request.Context(), lenderID, req.Loan, req.Payment, req.Notes)
	if err != nil {
		h.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out, "view": h.projector.Build(st)})
}

func (h *ReconcileHandler) Reject(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	out, st, err := h.service.Reject(c.Request.Context(), lenderID, req.Loan, req.Payment, req.Reason)
	if err != nil {
		h.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out, "view": h.projector.Build(st)})
}

func (h *ReconcileHandler) Snapshot(c *gin.Context) {
	lenderID, ok := lenderFor(c)
	if !ok {
		return
	}
	snap, err := h.service.Mirrored(c.Request.Context(), lenderID)
	if errors.Is(err, payment.ErrSnapshotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fetchedAt":   snap.FetchedAt,
		"fingerprint": snap.Fingerprint,
		"view":        h.projector.Build(reconcile.State{PendingPayments: snap.Groups, Pagination: snap.Pagination, FetchedAt: snap.FetchedAt}),
	})
}

// fail writes the error code and, when the session exists, the view so the
// screen can render the message next to the list it still holds.
func (h *ReconcileHandler) fail(c *gin.Context, err error, st *reconcile.State) {
	if errors.Is(err, reconcile.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_session"})
		return
	}
	kind := payment.KindOf(err)
	body := gin.H{
		"error":   string(kind),
		"message": payment.UserMessage(err),
	}
	if st != nil {
		body["view"] = h.projector.Build(*st)
	}
	c.JSON(statusFor(kind), body)
}

func statusFor(kind payment.ErrorKind) int {
	switch kind {
	case payment.KindValidationFailure, payment.KindMissingIdentifier:
		return http.StatusBadRequest
	case payment.KindInFlight:
		return http.StatusConflict
	case payment.KindNotFound:
		return http.StatusNotFound
	case payment.KindTimeoutFailure:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// lenderFor scopes a request to the caller. Admins may act for any lender via
// ?lender_id.
func lenderFor(c *gin.Context) (string, bool) {
	lenderID := c.GetString("user_id")
	if c.GetString("user_role") == "admin" {
		if override := strings.TrimSpace(c.Query("lender_id")); override != "" {
			lenderID = override
		}
	}
	if lenderID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return lenderID, true
}
