package forecast

import (
	"context"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ModelCache keeps trained model sets keyed by data snapshot and options.
// At most one training per key runs at a time; concurrent callers for the
// same key wait for it. A nil *ModelCache trains on every call.
type ModelCache struct {
	entries   *lru.Cache[string, *ModelSet]
	group     singleflight.Group
	trainings atomic.Int64
}

// NewModelCache returns a cache bounded to size model sets.
func NewModelCache(size int) (*ModelCache, error) {
	if size <= 0 {
		size = 64
	}
	entries, err := lru.New[string, *ModelSet](size)
	if err != nil {
		return nil, err
	}
	return &ModelCache{entries: entries}, nil
}

// GetOrTrain returns the cached set for key, or runs train once across all
// concurrent callers. The bool reports a cache hit. When the leading caller
// is cancelled, followers with live contexts retry under their own.
func (c *ModelCache) GetOrTrain(ctx context.Context, key string, train func(context.Context) (*ModelSet, error)) (*ModelSet, bool, error) {
	if c == nil {
		set, err := train(ctx)
		return set, false, err
	}
	if set, ok := c.entries.Get(key); ok {
		return set, true, nil
	}

	for {
		ch := c.group.DoChan(key, func() (interface{}, error) {
			if set, ok := c.entries.Get(key); ok {
				return set, nil
			}
			c.trainings.Add(1)
			set, err := train(ctx)
			if err != nil {
				return nil, err
			}
			c.entries.Add(key, set)
			return set, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, &PipelineError{Kind: ErrCancelled, Err: ctx.Err()}
		case r := <-ch:
			if r.Err != nil {
				if errors.Is(r.Err, ErrCancelled) && ctx.Err() == nil {
					continue
				}
				return nil, false, r.Err
			}
			return r.Val.(*ModelSet), false, nil
		}
	}
}

// Trainings returns how many training runs the cache has started.
func (c *ModelCache) Trainings() int64 {
	if c == nil {
		return 0
	}
	return c.trainings.Load()
}

// Len returns the number of cached model sets.
func (c *ModelCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
