package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/ndf/core/events"
	coremetrics "github.com/kilianp07/ndf/core/metrics"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/infra/logger"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// expense events. It stops when ctx is cancelled or the bus is closed; the
// returned WaitGroup completes once it has.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) *sync.WaitGroup {
	if bus == nil || sink == nil {
		return &sync.WaitGroup{}
	}
	log := logger.New("metrics-collector")
	return eventbus.Listen(ctx, bus, func(ev eventbus.Event) {
		if err := record(sink, ev); err != nil {
			log.Warnf("record %T: %v", ev, err)
		}
	})
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	now := time.Now()
	switch e := ev.(type) {
	case events.SheetSubmitted:
		return sink.RecordSheetEvent(sheetEvent(coremetrics.KindSubmitted, e.Sheet, e.Department, now))
	case events.SheetUpdated:
		return sink.RecordSheetEvent(sheetEvent(coremetrics.KindUpdated, e.Sheet, model.Department{}, now))
	case events.SheetApproved:
		return sink.RecordSheetEvent(sheetEvent(coremetrics.KindApproved, e.Sheet, e.Department, now))
	case events.SheetRejected:
		return sink.RecordSheetEvent(sheetEvent(coremetrics.KindRejected, e.Sheet, e.Department, now))
	case events.DSFDispatched:
		if r, ok := sink.(coremetrics.DSFRecorder); ok {
			return r.RecordDSF(coremetrics.DSFEvent{
				SheetID: e.SheetID, Department: label(e.Department, ""), Success: true,
				Amount: e.Amount, Pages: e.Pages, Time: e.Time,
			})
		}
	case events.DSFFailed:
		if r, ok := sink.(coremetrics.DSFRecorder); ok {
			return r.RecordDSF(coremetrics.DSFEvent{SheetID: e.SheetID, Time: e.Time})
		}
	}
	return nil
}

func sheetEvent(kind string, s model.ExpenseSheet, d model.Department, now time.Time) coremetrics.SheetEvent {
	return coremetrics.SheetEvent{
		Kind:       kind,
		SheetID:    s.ID,
		Department: label(d, s.DepartmentID),
		Amount:     s.Total,
		Time:       now,
	}
}

// label prefers the department code over its ID.
func label(d model.Department, fallback string) string {
	if d.Code != "" {
		return d.Code
	}
	if d.ID != "" {
		return d.ID
	}
	return fallback
}
