// Package eventbus fans expense events out to in-process subscribers.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/ndf/core/monitoring"
)

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation.
type Bus = TypedBus[Event]

// DefaultBuffer is the per-subscriber channel capacity of New.
const DefaultBuffer = 8

// New creates a Bus with DefaultBuffer slots per subscriber.
func New() *Bus { return NewTypedWithBuffer[Event](DefaultBuffer) }

// NewWithBuffer creates a Bus with n slots per subscriber.
func NewWithBuffer(n int) *Bus { return NewTypedWithBuffer[Event](n) }

// Listen subscribes to b and calls fn for every event until ctx is done or
// the bus is closed. A panic in fn is reported to the process monitor and
// the next event is still delivered. The WaitGroup completes once the
// subscriber is gone.
func Listen(ctx context.Context, b EventBus, fn func(Event)) *sync.WaitGroup {
	var wg sync.WaitGroup
	sub := b.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer b.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				deliver(fn, ev)
			}
		}
	}()
	return &wg
}

func deliver(fn func(Event), ev Event) {
	defer monitoring.Swallow(nil, map[string]string{"module": "eventbus", "event": fmt.Sprintf("%T", ev)})
	fn(ev)
}

var _ EventBus = (*Bus)(nil)
