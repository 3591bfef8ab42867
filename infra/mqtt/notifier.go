package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kilianp07/ndf/core/events"
	corelogger "github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/infra/logger"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Notification is the JSON document received by the mobile client.
type Notification struct {
	Type       string            `json:"type"`
	SheetID    string            `json:"sheet_id"`
	UserID     string            `json:"user_id"`
	Status     model.SheetStatus `json:"status"`
	Total      float64           `json:"total"`
	Department string            `json:"department,omitempty"`
	By         string            `json:"by,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Time       time.Time         `json:"time"`
}

// Notifier maps bus events to per-user topics.
type Notifier struct {
	pub    Publisher
	prefix string
	log    logger.Logger
	now    func() time.Time
}

func NewNotifier(pub Publisher, prefix string, log logger.Logger) *Notifier {
	if prefix == "" {
		prefix = "ndf"
	}
	return &Notifier{pub: pub, prefix: prefix, log: corelogger.OrNop(log), now: time.Now}
}

// SheetsTopic carries status changes of the user's own sheets.
func (n *Notifier) SheetsTopic(userID string) string {
	return n.prefix + "/users/" + userID + "/sheets"
}

// ApprovalsTopic carries sheets waiting for the user's decision.
func (n *Notifier) ApprovalsTopic(userID string) string {
	return n.prefix + "/users/" + userID + "/approvals"
}

// Start forwards bus events until ctx is done or the bus is closed.
func (n *Notifier) Start(ctx context.Context, bus eventbus.EventBus) *sync.WaitGroup {
	return eventbus.Listen(ctx, bus, n.Handle)
}

// Handle publishes the notifications derived from ev. Unknown events are
// ignored.
func (n *Notifier) Handle(ev eventbus.Event) {
	switch e := ev.(type) {
	case events.SheetSubmitted:
		msg := n.note("submitted", e.Sheet)
		msg.Department = e.Department.Code
		n.send(n.SheetsTopic(e.Sheet.UserID), msg)
		for _, id := range e.Approvers {
			if id == e.Sheet.UserID {
				continue
			}
			n.send(n.ApprovalsTopic(id), msg)
		}
	case events.SheetUpdated:
		n.send(n.SheetsTopic(e.Sheet.UserID), n.note("updated", e.Sheet))
	case events.SheetApproved:
		msg := n.note("approved", e.Sheet)
		msg.Department = e.Department.Code
		msg.By = e.By
		n.send(n.SheetsTopic(e.Sheet.UserID), msg)
	case events.SheetRejected:
		msg := n.note("rejected", e.Sheet)
		msg.Department = e.Department.Code
		msg.By = e.By
		msg.Reason = e.Reason
		n.send(n.SheetsTopic(e.Sheet.UserID), msg)
	}
}

func (n *Notifier) note(kind string, s model.ExpenseSheet) Notification {
	return Notification{
		Type:    kind,
		SheetID: s.ID,
		UserID:  s.UserID,
		Status:  s.Status,
		Total:   s.Total,
		Time:    n.now().UTC(),
	}
}

func (n *Notifier) send(topic string, msg Notification) {
	b, err := json.Marshal(msg)
	if err != nil {
		n.log.Errorf("encode notification: %v", err)
		return
	}
	if err := n.pub.Publish(topic, b); err != nil {
		n.log.Warnf("notify %s on %s: %v", msg.SheetID, topic, err)
	}
}
