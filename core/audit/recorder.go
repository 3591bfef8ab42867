package audit

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// Start appends a record to st for every workflow event on bus until ctx is
// done or the bus is closed.
func Start(ctx context.Context, bus eventbus.EventBus, st Store, log logger.Logger) *sync.WaitGroup {
	if bus == nil || st == nil {
		return &sync.WaitGroup{}
	}
	log = logger.OrNop(log)
	return eventbus.Listen(ctx, bus, func(ev eventbus.Event) {
		r, ok := FromEvent(ev, time.Now().UTC())
		if !ok {
			return
		}
		if err := st.Append(ctx, r); err != nil {
			log.Warnf("audit %s %s: %v", r.Event, r.SheetID, err)
		}
	})
}

// FromEvent converts a workflow event. now stamps events that carry no time
// of their own. ok is false for events outside the trail.
func FromEvent(ev eventbus.Event, now time.Time) (Record, bool) {
	switch e := ev.(type) {
	case events.SheetSubmitted:
		r := sheetRecord(EventSubmitted, e.Sheet, e.Department, e.Sheet.CreatedAt, now)
		r.By = e.Sheet.UserID
		return r, true
	case events.SheetUpdated:
		r := sheetRecord(EventUpdated, e.Sheet, model.Department{}, e.Sheet.UpdatedAt, now)
		r.By = e.Sheet.UserID
		return r, true
	case events.SheetApproved:
		r := sheetRecord(EventApproved, e.Sheet, e.Department, decidedAt(e.Sheet), now)
		r.By = e.By
		return r, true
	case events.SheetRejected:
		r := sheetRecord(EventRejected, e.Sheet, e.Department, decidedAt(e.Sheet), now)
		r.By = e.By
		r.Reason = e.Reason
		return r, true
	case events.DSFDispatched:
		return Record{
			Time:       stamp(e.Time, now),
			Event:      EventDSFSent,
			SheetID:    e.SheetID,
			Department: code(e.Department, ""),
			Amount:     e.Amount,
			Recipients: e.Recipients,
		}, true
	case events.DSFFailed:
		r := Record{Time: stamp(e.Time, now), Event: EventDSFFailed, SheetID: e.SheetID}
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
		return r, true
	}
	return Record{}, false
}

func sheetRecord(event string, s model.ExpenseSheet, d model.Department, at, now time.Time) Record {
	return Record{
		Time:       stamp(at, now),
		Event:      event,
		SheetID:    s.ID,
		UserID:     s.UserID,
		Department: code(d, s.DepartmentID),
		Amount:     s.Total,
	}
}

func decidedAt(s model.ExpenseSheet) time.Time {
	if s.DecidedAt != nil {
		return *s.DecidedAt
	}
	return s.UpdatedAt
}

func stamp(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}

func code(d model.Department, fallback string) string {
	if d.Code != "" {
		return d.Code
	}
	if d.ID != "" {
		return d.ID
	}
	return fallback
}
