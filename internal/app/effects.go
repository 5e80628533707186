package app

import (
	"context"
	"log"
)

// effect is one post-mutation side effect: activity logging, membership
// repair, notification fan-out. Effects run in the order given; a failure is
// logged and swallowed so it never rolls back the primary mutation or blocks
// the effects after it.
type effect struct {
	name string
	run  func(ctx context.Context) error
}

func runEffects(ctx context.Context, effects []effect) {
	for _, e := range effects {
		if err := e.run(ctx); err != nil {
			log.Printf("effect: %s: %v", e.name, err)
		}
	}
}
