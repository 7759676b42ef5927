package polling

import (
	"context"

	"golang.org/x/sync/errgroup"

	"certagent/internal/domain"
)

// Outcome is the result of polling one request in a batch.
type Outcome struct {
	RequestID domain.RequestID
	Result    *Result
	Err       error
}

// PollAll polls ids concurrently, at most limit at a time (unbounded when
// limit <= 0). Each request gets its own strategy from newStrategy. Outcomes
// are returned in the order of ids; one failing request does not stop the
// others.
func (p *Poller) PollAll(ctx context.Context, scope domain.Principal, ids []domain.RequestID, newStrategy func() Strategy, limit int) []Outcome {
	out := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			res, err := p.Poll(gctx, scope, id, newStrategy())
			out[i] = Outcome{RequestID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
