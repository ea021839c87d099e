package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bookfetch/book"
)

// Summary is the run-level view over a batch of queries. Internal
// retry and candidate history stays in the logs; the summary only
// says which queries ended where.
type Summary struct {
	Outcomes  []book.Outcome
	Succeeded []string
	Skipped   []string // already on disk from a prior run
	Failed    []string
}

// AllFailed reports whether nothing in the batch produced a file.
func (s Summary) AllFailed() bool {
	return len(s.Failed) > 0 && len(s.Succeeded) == 0 && len(s.Skipped) == 0
}

// RunBatch processes queries sequentially, continuing after individual
// failures, with a fixed delay between queries.
func (p *Pipeline) RunBatch(ctx context.Context, queries []string, interQueryDelay time.Duration) Summary {
	var summary Summary
	for i, query := range queries {
		if i > 0 && interQueryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interQueryDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			p.logger.Warn("batch cancelled",
				zap.Int("processed", i), zap.Int("total", len(queries)))
			for _, rest := range queries[i:] {
				summary.Outcomes = append(summary.Outcomes, book.Outcome{
					Query:  rest,
					Reason: book.ReasonCancelled,
				})
				summary.Failed = append(summary.Failed, rest)
			}
			break
		}

		p.logger.Info("processing query",
			zap.Int("index", i+1),
			zap.Int("total", len(queries)),
			zap.String("query", query))

		outcome := p.Run(ctx, query)
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch {
		case outcome.AlreadyExists:
			summary.Skipped = append(summary.Skipped, query)
		case outcome.Success:
			summary.Succeeded = append(summary.Succeeded, query)
		default:
			summary.Failed = append(summary.Failed, query)
		}
	}
	return summary
}
