/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"math/rand"
	"time"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/rotation/state"
)

// Policy tunes repeat avoidance for one pick.
type Policy struct {
	// AvoidWindow marks files played within this window as recent. Zero
	// means uniform selection.
	AvoidWindow time.Duration
}

const (
	freshWeight     = 1.0
	recentWeightMin = 0.01
	recentWeightMax = 0.05
)

// Pick selects one file from pool. Files played within the avoid window are
// heavily down-weighted in proportion to how recently they played, so when
// every file is recent the least recent ones are favoured. It returns false
// only for an empty pool.
func Pick(rng *rand.Rand, pool []models.AudioFile, history []state.Play, now time.Time, policy Policy) (models.AudioFile, bool) {
	if len(pool) == 0 {
		return models.AudioFile{}, false
	}
	weights := Weights(pool, history, now, policy)

	var total float64
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return pool[i], true
		}
		r -= w
	}
	return pool[len(pool)-1], true
}

// Weights returns the sampling weight of each pool entry.
func Weights(pool []models.AudioFile, history []state.Play, now time.Time, policy Policy) []float64 {
	weights := make([]float64, len(pool))
	if policy.AvoidWindow <= 0 {
		for i := range weights {
			weights[i] = freshWeight
		}
		return weights
	}

	last := make(map[string]time.Time, len(history))
	for _, p := range history {
		if p.AudioFileID != "" {
			last[p.AudioFileID] = p.PlayedAt
		}
		if p.Path != "" {
			last[p.Path] = p.PlayedAt
		}
	}

	for i, f := range pool {
		played, ok := last[f.ID]
		if !ok {
			played, ok = last[f.Path]
		}
		age := now.Sub(played)
		if !ok || age >= policy.AvoidWindow {
			weights[i] = freshWeight
			continue
		}
		if age < 0 {
			age = 0
		}
		frac := float64(age) / float64(policy.AvoidWindow)
		weights[i] = recentWeightMin + (recentWeightMax-recentWeightMin)*frac
	}
	return weights
}
