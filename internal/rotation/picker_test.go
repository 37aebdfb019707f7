/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/rotation/state"
)

func pool(ids ...string) []models.AudioFile {
	out := make([]models.AudioFile, len(ids))
	for i, id := range ids {
		out[i] = models.AudioFile{ID: id, Path: "/media/music/" + id + ".mp3"}
	}
	return out
}

func TestPickEmptyPool(t *testing.T) {
	if _, ok := Pick(rand.New(rand.NewSource(1)), nil, nil, t0, Policy{}); ok {
		t.Fatalf("expected no pick from empty pool")
	}
}

func TestPickUniformWithoutPolicy(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := pool("a", "b", "c")
	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		f, _ := Pick(rng, p, nil, t0, Policy{})
		counts[f.ID]++
	}
	for _, id := range []string{"a", "b", "c"} {
		if counts[id] < 850 || counts[id] > 1150 {
			t.Errorf("count[%s] = %d, expected roughly uniform", id, counts[id])
		}
	}
}

func TestPickAvoidsRecentPlays(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := pool("a", "b", "c")
	history := []state.Play{
		{AudioFileID: "a", PlayedAt: t0.Add(-5 * time.Minute)},
		{Path: "/media/music/b.mp3", PlayedAt: t0.Add(-10 * time.Minute)},
	}
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		f, _ := Pick(rng, p, history, t0, Policy{AvoidWindow: time.Hour})
		counts[f.ID]++
	}
	if counts["c"] < 900 {
		t.Fatalf("unplayed track should dominate, counts = %v", counts)
	}
}

func TestWeightsFavourOldestWhenAllRecent(t *testing.T) {
	p := pool("new", "old")
	history := []state.Play{
		{AudioFileID: "old", PlayedAt: t0.Add(-50 * time.Minute)},
		{AudioFileID: "new", PlayedAt: t0.Add(-1 * time.Minute)},
	}
	w := Weights(p, history, t0, Policy{AvoidWindow: time.Hour})
	if !(w[1] > w[0]) {
		t.Fatalf("older play should weigh more: %v", w)
	}
	if w[0] <= 0 {
		t.Fatalf("recent play must stay selectable: %v", w)
	}
}

func TestWeightsUseLatestPlay(t *testing.T) {
	p := pool("a")
	history := []state.Play{
		{AudioFileID: "a", PlayedAt: t0.Add(-2 * time.Hour)},
		{AudioFileID: "a", PlayedAt: t0.Add(-time.Minute)},
	}
	if w := Weights(p, history, t0, Policy{AvoidWindow: time.Hour}); w[0] >= freshWeight {
		t.Fatalf("latest play should mark track recent, weight %v", w[0])
	}
}
