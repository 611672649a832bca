package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/vulntrack/vulntrack/internal/types"
)

// RetestResult is the outcome of one item in a bulk retest.
type RetestResult struct {
	Finding       types.Finding `json:"finding"`
	Success       bool          `json:"success"`
	Status        string        `json:"status,omitempty"`
	FindingsCount int           `json:"findings_count"`
	Err           error         `json:"-"`
	Error         string        `json:"error,omitempty"`
}

func failed(f types.Finding, err error) RetestResult {
	return RetestResult{Finding: f, Err: err, Error: err.Error()}
}

// BulkRetest retests findings one after another, waiting for each call
// before starting the next. It always returns one result per input in
// input order; failures are recorded on the item and never stop the batch.
// Once ctx is done the remaining items are marked failed with ctx.Err().
func (c *Client) BulkRetest(ctx context.Context, src types.Source, findings []types.Finding) []RetestResult {
	results := make([]RetestResult, len(findings))
	for i, f := range findings {
		if err := ctx.Err(); err != nil {
			results[i] = failed(f, err)
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				results[i] = failed(f, err)
				continue
			}
		}
		resp, err := c.Retest(ctx, src, f)
		if err != nil {
			c.log.Warn("retest failed", zap.String("source", string(src)),
				zap.String("name", f.Name), zap.String("host", f.Host), zap.Error(err))
			results[i] = failed(f, err)
			continue
		}
		results[i] = RetestResult{
			Finding:       f,
			Success:       resp.Success,
			Status:        resp.Status,
			FindingsCount: resp.FindingsCount,
		}
	}
	return results
}

// Tally counts successful and failed results.
func Tally(results []RetestResult) (succeeded, errored int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			errored++
		}
	}
	return succeeded, errored
}
