package progress

import "context"

// Sink consumes batches of events. Consume may be called many times and
// must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. Hub implements it.
type Emitter interface {
	Emit(evt Event)
}
