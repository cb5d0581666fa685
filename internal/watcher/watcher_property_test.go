//go:build property

package watcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("a burst flushes once with one event per path", prop.ForAll(
		func(paths []int) bool {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			d := NewDebouncer(15 * time.Millisecond)
			go d.start(ctx)

			unique := make(map[string]bool)
			for _, p := range paths {
				path := fmt.Sprintf("emails/T%d.mjml", p)
				unique[path] = true
				d.Add(ChangeEvent{Type: EventTypeModified, Path: path})
			}

			select {
			case events := <-d.Output():
				if len(events) != len(unique) {
					return false
				}
				for i := 1; i < len(events); i++ {
					if events[i-1].Path >= events[i].Path {
						return false
					}
				}
			case <-time.After(time.Second):
				return false
			}

			select {
			case <-d.Output():
				return false
			case <-time.After(40 * time.Millisecond):
				return true
			}
		},
		gen.SliceOfN(20, gen.IntRange(0, 9)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}
