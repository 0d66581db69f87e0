package workflow

import (
	"context"
	"sync"

	wfmodels "meridian/internal/domain/models/workflow"
)

// TaggedEvent is one source-labeled event produced by the merger.
type TaggedEvent struct {
	Source string
	Event  wfmodels.Event
}

// Merge composes N tagged sources into one output stream (spec.md §4.8).
// The output closes once every source channel has closed; a source ending
// in error or its own terminal event does not affect the others.
func Merge(ctx context.Context, sources map[string]<-chan wfmodels.Event) <-chan TaggedEvent {
	out := make(chan TaggedEvent, 32)
	var wg sync.WaitGroup

	for label, ch := range sources {
		wg.Add(1)
		go func(label string, ch <-chan wfmodels.Event) {
			defer wg.Done()
			for ev := range ch {
				select {
				case out <- TaggedEvent{Source: label, Event: ev}:
				case <-ctx.Done():
					return
				}
			}
		}(label, ch)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
