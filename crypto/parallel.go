package crypto

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// computePair runs both computations concurrently and joins them. A canceled
// context fails the pair; neither computation result is used then.
func computePair(ctx context.Context, first, second func() Element) (Element, Element, error) {
	var a, b Element
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		a = first()
		return nil
	})
	eg.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b = second()
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
