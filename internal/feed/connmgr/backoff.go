package connmgr

import (
	"fmt"
	"math/rand"
	"time"

	"tickboard/config"

	"github.com/cenkalti/backoff/v4"
)

// Every reconnect delay lies in [MinReconnectDelay, MaxReconnectDelay].
const (
	MinReconnectDelay = time.Second
	MaxReconnectDelay = 30 * time.Second
)

// Backoff picks the delay before the next reconnect attempt.
type Backoff interface {
	Next() time.Duration
	// Reset is called when a connection opens.
	Reset()
}

// NewBackoff builds the policy named in cfg.
func NewBackoff(cfg config.ReconnectConfig) (Backoff, error) {
	switch cfg.Policy {
	case config.PolicyRandom, "":
		return NewRandomBackoff(cfg.MaxExponent), nil
	case config.PolicyFixed:
		return FixedBackoff{Delay: cfg.FixedDelay}, nil
	case config.PolicyExponential:
		return NewExponentialBackoff(), nil
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", cfg.Policy)
	}
}

func clampDelay(d time.Duration) time.Duration {
	return min(max(d, MinReconnectDelay), MaxReconnectDelay)
}

// FixedBackoff always waits Delay.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next() time.Duration { return clampDelay(b.Delay) }
func (FixedBackoff) Reset()                {}

// RandomBackoff draws a fresh exponent k uniformly from [0, maxExponent] on
// every call and waits min(30s, 1s * 2^k). It keeps no failure count, so the
// delay does not grow under sustained failure.
type RandomBackoff struct {
	maxExponent int
	intn        func(n int) int
}

func NewRandomBackoff(maxExponent int) *RandomBackoff {
	return &RandomBackoff{maxExponent: max(maxExponent, 0), intn: rand.Intn}
}

func (b *RandomBackoff) Next() time.Duration {
	k := b.intn(b.maxExponent + 1)
	if k > 5 {
		// 2^5 s already exceeds the cap
		k = 5
	}
	return clampDelay(MinReconnectDelay << k)
}

func (*RandomBackoff) Reset() {}

// ExponentialBackoff grows with consecutive failures and starts over once a
// connection opens.
type ExponentialBackoff struct {
	bo *backoff.ExponentialBackOff
}

func NewExponentialBackoff() *ExponentialBackoff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = MinReconnectDelay
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2.0
	bo.MaxInterval = MaxReconnectDelay
	bo.MaxElapsedTime = 0 // never give up
	bo.Reset()
	return &ExponentialBackoff{bo: bo}
}

func (b *ExponentialBackoff) Next() time.Duration {
	d := b.bo.NextBackOff()
	if d == backoff.Stop {
		d = MaxReconnectDelay
	}
	return clampDelay(d)
}

func (b *ExponentialBackoff) Reset() {
	b.bo.Reset()
}
