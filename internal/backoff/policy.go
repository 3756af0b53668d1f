// Package backoff computes retry delays for the tool transport's
// reconnect/retry path.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes an exponential-backoff-with-jitter schedule.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// Compute returns the delay for the given attempt (1-indexed):
// base = InitialMs * Factor^(attempt-1), jitter = base * Jitter * random(),
// total = min(MaxMs, base+jitter).
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter, not security-sensitive
}

// ComputeWithRand is Compute with an injected random source in [0,1) for
// deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// ToolRetryPolicy is the fixed schedule the tool transport uses:
// 0.5s * attempt, two retries, no growth factor beyond linear scaling,
// a small jitter to avoid thundering-herd reconnects when several pooled
// connections fail at once.
func ToolRetryPolicy() Policy {
	return Policy{
		InitialMs: 500,
		MaxMs:     1500,
		Factor:    1, // linear: ComputeLinear below multiplies InitialMs by attempt
		Jitter:    0.1,
	}
}

// ComputeLinear implements the tool transport's exact "0.5s * attempt"
// schedule (distinct from the exponential Compute above, which the tool
// transport does not use).
func ComputeLinear(policy Policy, attempt int, randomValue float64) time.Duration {
	base := policy.InitialMs * float64(attempt)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}
