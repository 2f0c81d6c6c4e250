package market

import (
	"math/rand/v2"
	"time"
)

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SystemRand draws from the goroutine-safe global generator
type SystemRand struct{}

func (SystemRand) Float64() float64 { return rand.Float64() }
