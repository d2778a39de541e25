package alias

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	logx "keysendnotifier/pkg/logx"
)

// Resolver serves aliases from the cache and falls back to the directory on
// a miss. Concurrent misses for one pubkey share a single query.
type Resolver struct {
	cache   *Cache
	dir     Directory
	log     logx.Logger
	timeout time.Duration

	group singleflight.Group
}

type Option func(*Resolver)

func WithLogger(log logx.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithTimeout bounds each directory query. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func NewResolver(cache *Cache, dir Directory, opts ...Option) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	r := &Resolver{cache: cache, dir: dir, log: logx.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Cache() *Cache { return r.cache }

func (r *Resolver) Resolve(ctx context.Context, pubkey string) (string, error) {
	if name, ok := r.cache.Get(pubkey); ok {
		r.log.Debug("alias found in cache", logx.String("pubkey", pubkey), logx.String("alias", name))
		return name, nil
	}

	ch := r.group.DoChan(pubkey, func() (any, error) {
		// A caller that lost the race to a finished flight may land here.
		if name, ok := r.cache.Get(pubkey); ok {
			return name, nil
		}
		r.log.Debug("alias not cached, querying directory", logx.String("pubkey", pubkey))

		qctx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			qctx, cancel = context.WithTimeout(qctx, r.timeout)
			defer cancel()
		}
		name, err := r.dir.LookupAlias(qctx, pubkey)
		if err != nil {
			return "", err
		}
		r.cache.Put(pubkey, name)
		r.log.Debug("alias saved in cache", logx.String("pubkey", pubkey), logx.String("alias", name))
		return name, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
