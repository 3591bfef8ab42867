// Package events defines the expense workflow events emitted on the event bus.
//
// Available event types:
//   - SheetSubmitted: a new sheet awaits approval
//   - SheetUpdated: a pending sheet was edited by its owner
//   - SheetApproved / SheetRejected: a head or admin decided a sheet
//   - DSFDispatched / DSFFailed: outcome of the finance bundle delivery
package events
