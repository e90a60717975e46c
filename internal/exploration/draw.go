package exploration

import (
	"math"
	"math/rand/v2"
	"sort"
)

// pcgIncrement is the second PCG seed word; any fixed odd constant works.
const pcgIncrement = 0x9e3779b97f4a7c15

// Draw picks up to quota entry ids by weighted sampling without replacement.
// Each entry's weight is 1 + final score, so better posts are likelier but never certain.
//
// The result depends only on seed and the set of entries, not on their order:
// entries are ranked by id before random keys are assigned.
func Draw(entries []Entry, quota int, seed uint64) []string {
	if quota <= 0 || len(entries) == 0 {
		return nil
	}

	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Candidate.ID < sorted[j].Candidate.ID
	})

	rng := rand.New(rand.NewPCG(seed, pcgIncrement))
	type keyed struct {
		id  string
		key float64
	}
	keys := make([]keyed, len(sorted))
	for i, e := range sorted {
		w := 1 + math.Max(0, e.Score.Final)
		// Efraimidis-Spirakis: largest u^(1/w) wins; compared in log space.
		keys[i] = keyed{id: e.Candidate.ID, key: math.Log(rng.Float64()) / w}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].key > keys[j].key
	})

	if quota > len(keys) {
		quota = len(keys)
	}
	out := make([]string, quota)
	for i := range out {
		out[i] = keys[i].id
	}
	return out
}
