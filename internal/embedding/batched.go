package embedding

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Default batching parameters for Batched.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

// Ensure BatchedProvider implements Provider.
var _ Provider = (*BatchedProvider)(nil)

// BatchedProvider splits large inputs into batches and embeds them
// concurrently. Results are reassembled in input order.
type BatchedProvider struct {
	inner       Provider
	batchSize   int
	concurrency int
}

// Batched wraps p. Non-positive values select the defaults.
func Batched(p Provider, batchSize, concurrency int) *BatchedProvider {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &BatchedProvider{inner: p, batchSize: batchSize, concurrency: concurrency}
}

// Embed implements Provider. When several batches fail, the error for the
// lowest input index is returned. ProviderError indexes refer to texts.
func (b *BatchedProvider) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= b.batchSize {
		return b.inner.Embed(ctx, texts)
	}

	out := make([]Embedding, len(texts))
	numBatches := (len(texts) + b.batchSize - 1) / b.batchSize
	batchErrs := make([]error, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for n := 0; n < numBatches; n++ {
		start := n * b.batchSize
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			embs, err := b.inner.Embed(gctx, texts[start:end])
			if err != nil {
				batchErrs[n] = offsetError(err, start)
				return batchErrs[n]
			}
			copy(out[start:end], embs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Batches cancelled because of an earlier failure report
		// context.Canceled; prefer the real cause with the lowest index.
		for _, berr := range batchErrs {
			if berr != nil && !errors.Is(berr, context.Canceled) {
				return nil, berr
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return out, nil
}

// offsetError shifts a batch-relative ProviderError index to the input index.
// Unattributed failures are attributed to the first input of the batch.
func offsetError(err error, start int) error {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return err
	}
	idx := start
	if pe.Index >= 0 {
		idx = start + pe.Index
	}
	return &ProviderError{Index: idx, Err: pe.Err}
}

// ModelName returns the wrapped provider's model name.
func (b *BatchedProvider) ModelName() string {
	return b.inner.ModelName()
}

// Dimensions returns the wrapped provider's dimensions.
func (b *BatchedProvider) Dimensions() int {
	return b.inner.Dimensions()
}
