package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

var (
	t0    = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	sales = model.Department{ID: "d1", Code: "SAL"}
)

func TestFromEvent(t *testing.T) {
	decided := t0.Add(time.Hour)
	sheet := model.ExpenseSheet{ID: "s1", UserID: "emp", DepartmentID: "d1", Total: 42, CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)}
	decidedSheet := sheet
	decidedSheet.DecidedAt = &decided
	now := t0.Add(24 * time.Hour)

	cases := []struct {
		name string
		ev   eventbus.Event
		want Record
	}{
		{"submitted", events.SheetSubmitted{Sheet: sheet, Department: sales},
			Record{Time: t0, Event: EventSubmitted, SheetID: "s1", UserID: "emp", By: "emp", Department: "SAL", Amount: 42}},
		{"updated without department", events.SheetUpdated{Sheet: sheet},
			Record{Time: t0.Add(time.Minute), Event: EventUpdated, SheetID: "s1", UserID: "emp", By: "emp", Department: "d1", Amount: 42}},
		{"approved", events.SheetApproved{Sheet: decidedSheet, Department: sales, By: "head"},
			Record{Time: decided, Event: EventApproved, SheetID: "s1", UserID: "emp", By: "head", Department: "SAL", Amount: 42}},
		{"rejected", events.SheetRejected{Sheet: decidedSheet, Department: sales, By: "head", Reason: "no receipt"},
			Record{Time: decided, Event: EventRejected, SheetID: "s1", UserID: "emp", By: "head", Department: "SAL", Amount: 42, Reason: "no receipt"}},
		{"dsf sent", events.DSFDispatched{SheetID: "s1", Department: sales, Amount: 42, Recipients: []string{"dsf@example.org"}, Time: decided},
			Record{Time: decided, Event: EventDSFSent, SheetID: "s1", Department: "SAL", Amount: 42, Recipients: []string{"dsf@example.org"}}},
		{"dsf failed without time", events.DSFFailed{SheetID: "s1", Err: errors.New("smtp down")},
			Record{Time: now, Event: EventDSFFailed, SheetID: "s1", Error: "smtp down"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := FromEvent(c.ev, now)
			require.True(t, ok)
			assert.Equal(t, c.want, got)
		})
	}

	_, ok := FromEvent("noise", now)
	assert.False(t, ok)
}

func TestQueryMatch(t *testing.T) {
	r := Record{Time: t0, Event: EventApproved, SheetID: "s1", UserID: "emp", By: "head"}
	cases := []struct {
		name string
		q    Query
		ok   bool
	}{
		{"empty", Query{}, true},
		{"event", Query{Event: EventRejected}, false},
		{"sheet", Query{SheetID: "s1"}, true},
		{"owner", Query{UserID: "emp"}, true},
		{"decider", Query{UserID: "head"}, true},
		{"stranger", Query{UserID: "out"}, false},
		{"since inclusive", Query{Since: t0}, true},
		{"until exclusive", Query{Until: t0}, false},
		{"window", Query{Since: t0.Add(-time.Hour), Until: t0.Add(time.Hour)}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.ok, c.q.Match(r))
		})
	}
}

type memStore struct {
	mu   sync.Mutex
	recs []Record
	fail bool
}

func (m *memStore) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func TestStartRecordsWorkflowEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	st := &memStore{}
	ctx, cancel := context.WithCancel(context.Background())
	wg := Start(ctx, bus, st, nil)

	bus.Publish(events.SheetSubmitted{Sheet: model.ExpenseSheet{ID: "s1", UserID: "emp", CreatedAt: t0}})
	bus.Publish("ignored")
	bus.Publish(events.SheetApproved{Sheet: model.ExpenseSheet{ID: "s1", UserID: "emp", UpdatedAt: t0}, By: "head"})
	require.Eventually(t, func() bool { return st.len() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	recs, err := st.Query(context.Background(), Query{Event: EventApproved})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "head", recs[0].By)
}

func TestStartSurvivesAppendFailure(t *testing.T) {
	bus := eventbus.New()
	st := &memStore{fail: true}
	wg := Start(context.Background(), bus, st, nil)
	bus.Publish(events.SheetUpdated{Sheet: model.ExpenseSheet{ID: "s1"}})
	bus.Close()
	wg.Wait()
	assert.Zero(t, st.len())
}

func TestStartWithoutStore(t *testing.T) {
	wg := Start(context.Background(), eventbus.New(), nil, nil)
	wg.Wait()
}
