package backoff

import "math/rand"

func rngFloat() float64 {
	return rand.Float64() // #nosec G404 -- jitter, not security-sensitive
}
