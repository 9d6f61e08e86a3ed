package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// DefaultConcurrency bounds parallel item calls in Process.
	DefaultConcurrency = 4
)

// Result is the outcome of one item in a batch.
type Result struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchResult aggregates the per-item results.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseIDs reads a parameter that is either one string or an array of
// strings. Duplicates are dropped keeping first-seen order, and more than
// limit IDs is an error when limit is positive.
func ParseIDs(param any, paramName string, limit int) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var ids []string
	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		ids = []string{v}
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		seen := make(map[string]struct{}, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			if _, dup := seen[str]; dup {
				continue
			}
			seen[str] = struct{}{}
			ids = append(ids, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	if limit > 0 && len(ids) > limit {
		return nil, fmt.Errorf("%s accepts at most %d items, got %d", paramName, limit, len(ids))
	}
	return ids, nil
}

// Process calls fn for every id with at most concurrency calls in flight and
// returns the results in input order. A failing item never stops the others;
// only cancellation of ctx does, and the remaining items then fail with the
// context error.
func Process(ctx context.Context, ids []string, concurrency int, fn func(ctx context.Context, id string) (any, error)) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = NewErrorResult(id, err)
				return nil
			}
			v, err := fn(ctx, id)
			if err != nil {
				results[i] = NewErrorResult(id, err)
				return nil
			}
			results[i] = NewSuccessResult(id, v)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summarize counts successes and failures.
func Summarize(results []Result) BatchResult {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// NewSuccessResult creates a success result carrying v as JSON. A value that
// does not marshal becomes an error result.
func NewSuccessResult(id string, v any) Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return NewErrorResult(id, fmt.Errorf("failed to encode result: %w", err))
	}
	return Result{ID: id, Status: StatusSuccess, Result: raw}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: StatusError,
		Error:  err.Error(),
	}
}
