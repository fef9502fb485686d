package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/treemana/dohtun/log"
)

// Link is one step of a Chain.
type Link struct {
	Transport Transport
	Resolver  Resolver
}

// Chain tries its links in order and returns the first response.
type Chain struct {
	links []Link
}

func NewChain(links ...Link) *Chain {
	return &Chain{links: links}
}

func (c *Chain) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	var lastErr = errors.New("no transport configured")
	for i, l := range c.links {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolution, err)
		}

		resp, err := l.Resolver.Resolve(ctx, query)
		if err == nil {
			if i > 0 {
				log.Sugar.Infof("resolved by fallback %s after %d failure(s)", l.Transport, i)
			}
			return resp, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: all transports failed, last error: %w", ErrResolution, lastErr)
}

// Close releases every link that holds connections.
func (c *Chain) Close() error {
	var errs []error
	for _, l := range c.links {
		if closer, ok := l.Resolver.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
