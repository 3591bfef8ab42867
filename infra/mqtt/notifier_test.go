package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

type sent struct {
	topic string
	note  Notification
}

type recordPublisher struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (r *recordPublisher) Publish(topic string, payload []byte) error {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{topic, n})
	return r.err
}

func (r *recordPublisher) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.topic)
	}
	return out
}

func TestNotifierSubmittedReachesApprovers(t *testing.T) {
	pub := &recordPublisher{}
	n := NewNotifier(pub, "", nil)
	n.Handle(events.SheetSubmitted{
		Sheet:      model.ExpenseSheet{ID: "s1", UserID: "u1", Status: model.StatusPending, Total: 42},
		Department: model.Department{Code: "IT"},
		Approvers:  []string{"h1", "u1", "h2"},
	})
	require.Equal(t, []string{
		"ndf/users/u1/sheets",
		"ndf/users/h1/approvals",
		"ndf/users/h2/approvals",
	}, pub.topics())
	require.Equal(t, "submitted", pub.msgs[1].note.Type)
	require.Equal(t, "IT", pub.msgs[1].note.Department)
	require.InDelta(t, 42.0, pub.msgs[1].note.Total, 1e-9)
}

func TestNotifierDecisions(t *testing.T) {
	pub := &recordPublisher{}
	n := NewNotifier(pub, "acme", nil)
	sheet := model.ExpenseSheet{ID: "s1", UserID: "u1", Status: model.StatusRejected}
	n.Handle(events.SheetRejected{Sheet: sheet, By: "h1", Reason: "missing receipt"})
	n.Handle(events.DSFFailed{SheetID: "s1"})
	require.Equal(t, []string{"acme/users/u1/sheets"}, pub.topics())
	note := pub.msgs[0].note
	require.Equal(t, "rejected", note.Type)
	require.Equal(t, "missing receipt", note.Reason)
	require.Equal(t, "h1", note.By)
}

func TestNotifierPublishErrorIsLogged(t *testing.T) {
	pub := &recordPublisher{err: errors.New("offline")}
	n := NewNotifier(pub, "", nil)
	n.Handle(events.SheetUpdated{Sheet: model.ExpenseSheet{ID: "s1", UserID: "u1"}})
	require.Len(t, pub.topics(), 1)
}

func TestNotifierStart(t *testing.T) {
	pub := &recordPublisher{}
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	wg := NewNotifier(pub, "", nil).Start(ctx, bus)
	bus.Publish(events.SheetApproved{Sheet: model.ExpenseSheet{ID: "s1", UserID: "u1"}, By: "h1"})
	require.Eventually(t, func() bool { return len(pub.topics()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
}
