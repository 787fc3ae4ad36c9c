package store

import (
	"math"
	"time"
)

// frecencyScore blends run/open count with recency decay (GLOSSARY:
// "Frecency: combination of frequency and recency"). Score halves every
// halfLife since lastUsed, scaled by log1p(count) so repeat use keeps
// compounding without a single burst dominating forever.
func frecencyScore(count int, lastUsed time.Time, halfLife time.Duration) float64 {
	age := time.Since(lastUsed)
	if age < 0 {
		age = 0
	}
	decay := math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
	return math.Log1p(float64(count)) * decay
}
