package experiment

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachMember runs fn for every member index on at most Workers goroutines
// and returns once all of them are done. fn must only touch state owned by
// its member.
func (c *Controller) forEachMember(ctx context.Context, fn func(i int)) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.Workers)
	for i := range c.grids {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	return group.Wait()
}

func (c *Controller) stepAll(ctx context.Context) error {
	return c.forEachMember(ctx, func(i int) {
		c.stepper.Step(c.grids[i], &c.genomes[i])
	})
}

// sampleAll scores every grid and keeps the best sample per member.
func (c *Controller) sampleAll(ctx context.Context) error {
	return c.forEachMember(ctx, func(i int) {
		score := c.evaluator.Score(c.grids[i], c.patterns)
		if score > c.fitness[i] {
			c.fitness[i] = score
		}
	})
}
