package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/taskloom/taskloom/internal/errors"
	"github.com/taskloom/taskloom/internal/event"
	"github.com/taskloom/taskloom/internal/logging"
)

// rateLimitFloor is the minimum backoff applied after a rate-limit
// response, before doubling.
const rateLimitFloor = 5 * time.Second

// Chain walks an ordered list of endpoints, retrying each one with
// exponential backoff before advancing to the next. It implements
// Endpoint itself so chains compose anywhere a single endpoint would.
type Chain struct {
	endpoints []Endpoint
	retry     RetryConfig
	bus       *event.Bus
	log       *logging.Logger

	// sleep and jitter are injectable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewChain builds a chain over the given endpoints. The first endpoint is
// the primary; the rest are fallbacks in order. bus may be nil.
func NewChain(endpoints []Endpoint, retry RetryConfig, bus *event.Bus, log *logging.Logger) *Chain {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Chain{
		endpoints: endpoints,
		retry:     retry.withDefaults(),
		bus:       bus,
		log:       log.WithComponent("provider"),
		sleep:     sleepContext,
		jitter:    func() float64 { return rand.Float64() },
	}
}

// Describe identifies the chain by its primary endpoint.
func (c *Chain) Describe() string {
	if len(c.endpoints) == 0 {
		return "chain/empty"
	}
	return c.endpoints[0].Describe()
}

// Invoke tries each endpoint in order. An endpoint gets MaxRetries+1
// attempts, with exponential backoff between them, before the chain moves
// on. Client errors other than rate limits skip the remaining attempts on
// that endpoint. When a fallback endpoint succeeds, one FallbackUsedEvent
// is published. When every endpoint is exhausted, the error is a
// *errors.TerminalError wrapping the last failure.
func (c *Chain) Invoke(ctx context.Context, messages []Message) (string, error) {
	if len(c.endpoints) == 0 {
		return "", &errors.TerminalError{Attempts: 0, Last: fmt.Errorf("no endpoints configured")}
	}

	attempts := 0
	var last error
	for pos, ep := range c.endpoints {
		reply, tried, err := c.invokeEndpoint(ctx, ep, messages)
		attempts += tried
		if err == nil {
			if pos > 0 {
				c.log.Info("fallback endpoint succeeded", "endpoint", ep.Describe(), "position", pos)
				if c.bus != nil {
					c.bus.Publish(event.FallbackUsedEvent{
						Endpoint:  ep.Describe(),
						Position:  pos,
						Timestamp: time.Now(),
					})
				}
			}
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		last = err
		c.log.Warn("endpoint exhausted", "endpoint", ep.Describe(), "error", err)
	}

	return "", &errors.TerminalError{Attempts: attempts, Last: last}
}

// invokeEndpoint runs the retry loop for one endpoint and reports how many
// attempts it consumed.
func (c *Chain) invokeEndpoint(ctx context.Context, ep Endpoint, messages []Message) (string, int, error) {
	var last error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, errors.IsRateLimited(last))
			c.log.Debug("retrying endpoint", "endpoint", ep.Describe(), "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return "", attempt, err
			}
		}

		reply, err := ep.Invoke(ctx, messages)
		if err == nil {
			return reply, attempt + 1, nil
		}
		last = err
		if ctx.Err() != nil {
			return "", attempt + 1, err
		}
		if !errors.IsRetryable(err) {
			// A definitive client rejection will not succeed on retry;
			// let the chain advance to the next endpoint.
			return "", attempt + 1, err
		}
	}
	return "", c.retry.MaxRetries + 1, last
}

// backoff computes the sleep before retry number retry (1-based):
// base × multiplier^(retry-1), jittered ±20%, capped at MaxDelay. After a
// rate limit the delay is floored at rateLimitFloor and doubled so the
// chain backs off well clear of the window.
func (c *Chain) backoff(retry int, rateLimited bool) time.Duration {
	d := time.Duration(float64(c.retry.BaseDelay) * math.Pow(c.retry.Multiplier, float64(retry-1)))
	// jitter() is uniform in [0,1); scale to [-20%, +20%).
	d = time.Duration(float64(d) * (0.8 + 0.4*c.jitter()))
	if d > c.retry.MaxDelay {
		d = c.retry.MaxDelay
	}
	if rateLimited {
		if d < rateLimitFloor {
			d = rateLimitFloor
		}
		d *= 2
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
