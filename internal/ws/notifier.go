package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/loangraph/reconciler/internal/reconcile"
)

// Notifier turns reconciliation store events into hub messages carrying the
// rendered view, so subscribed screens redraw without polling.
type Notifier struct {
	hub       *Hub
	projector reconcile.Projector
	logger    *slog.Logger
}

func NewNotifier(hub *Hub, projector reconcile.Projector, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{hub: hub, projector: projector, logger: logger}
}

type pendingMessage struct {
	Event     reconcile.EventType `json:"event"`
	LoanID    string              `json:"loanId,omitempty"`
	PaymentID string              `json:"paymentId,omitempty"`
	Data      reconcile.View      `json:"data"`
}

func (n *Notifier) Publish(lenderID string, ev reconcile.Event) {
	topic := PendingTopic(lenderID)
	if n.hub.Subscribers(topic) == 0 {
		return
	}
	payload, err := json.Marshal(pendingMessage{
		Event:     ev.Type,
		LoanID:    ev.LoanID,
		PaymentID: ev.PaymentID,
		Data:      n.projector.Build(ev.State),
	})
	if err != nil {
		n.logger.Error("encode pending update", "lender_id", lenderID, "event", ev.Type, "err", err)
		return
	}
	n.hub.Publish(topic, payload)
}
