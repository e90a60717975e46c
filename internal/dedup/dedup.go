// Package dedup collapses near-identical candidate posts into duplicate groups.
package dedup

import (
	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/internal/links"
	"github.com/thebtf/xfeed/pkg/models"
	"github.com/thebtf/xfeed/pkg/similarity"
)

// Config controls near-duplicate text matching.
type Config struct {
	// SimilarityThreshold is the minimum shingle Jaccard similarity for two
	// normalized texts to be near-duplicates (default 0.8).
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// ShingleSize is the word n-gram length used for shingling (default 3).
	ShingleSize int `json:"shingle_size"`
}

// DefaultConfig returns the default deduplication configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		ShingleSize:         3,
	}
}

// Deduplicator groups candidates that share a link, quote one another,
// or carry near-identical text.
type Deduplicator struct {
	log zerolog.Logger
	cfg Config
}

// New creates a Deduplicator. Zero config fields fall back to the defaults.
func New(cfg Config, log zerolog.Logger) *Deduplicator {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.ShingleSize <= 0 {
		cfg.ShingleSize = def.ShingleSize
	}
	return &Deduplicator{
		cfg: cfg,
		log: log.With().Str("component", "dedup").Logger(),
	}
}

// Dedupe partitions candidates into duplicate groups. Every valid candidate ends up
// in exactly one group; groups are ordered by the input position of their first member.
//
// Candidates without an ID or an author, and repeated IDs after the first, are
// dropped and counted as defects. Identical normalized links always group. Text similarity
// is approximate but deterministic for identical input.
func (d *Deduplicator) Dedupe(candidates []models.Candidate) ([]models.DuplicateGroup, models.DefectSummary) {
	var defects models.DefectSummary

	valid := make([]models.Candidate, 0, len(candidates))
	byID := make(map[string]int, len(candidates))
	for _, c := range candidates {
		if c.ID == "" {
			defects.MissingIdentity++
			d.log.Warn().Str("author", c.Author).Msg("Dropping candidate without identity")
			continue
		}
		if c.AuthorKey() == "" {
			defects.MissingAuthor++
			d.log.Warn().Str("id", c.ID).Msg("Dropping candidate without author")
			continue
		}
		if _, dup := byID[c.ID]; dup {
			defects.DuplicateIdentity++
			d.log.Warn().Str("id", c.ID).Msg("Dropping candidate with repeated identity")
			continue
		}
		byID[c.ID] = len(valid)
		valid = append(valid, c)
	}

	if len(valid) == 0 {
		return nil, defects
	}

	uf := newUnionFind(len(valid))
	outbound := make([][]string, len(valid))
	for i := range valid {
		outbound[i] = outboundLinks(&valid[i])
	}

	// (a) shared outbound link
	firstByLink := make(map[string]int)
	for i, urls := range outbound {
		for _, u := range urls {
			if first, ok := firstByLink[u]; ok {
				uf.union(first, i, models.CollapseSameLink)
			} else {
				firstByLink[u] = i
			}
		}
	}

	// Candidates sharing a permalink are the same post (reposts carry the original URL).
	byPermalink := make(map[string][]int)
	for i := range valid {
		if p := links.Normalize(valid[i].URL); p != "" {
			if prev := byPermalink[p]; len(prev) > 0 {
				uf.union(prev[0], i, models.CollapseSameLink)
			}
			byPermalink[p] = append(byPermalink[p], i)
		}
	}

	// (b) quote chains: explicit quoted id, or a link to another candidate's permalink
	for i := range valid {
		if q := valid[i].QuotedID; q != "" {
			if orig, ok := byID[q]; ok && orig != i {
				uf.union(orig, i, models.CollapseQuoteChain)
			}
		}
		for _, u := range outbound[i] {
			for _, orig := range byPermalink[u] {
				if orig != i {
					uf.union(orig, i, models.CollapseQuoteChain)
				}
			}
		}
	}

	// (c) near-duplicate text
	sets := make([]similarity.TermSet, len(valid))
	for i := range valid {
		sets[i] = similarity.Shingles(similarity.NormalizeText(valid[i].Text), d.cfg.ShingleSize)
	}
	for _, p := range similarity.SimilarPairs(sets, d.cfg.SimilarityThreshold) {
		uf.union(p[0], p[1], models.CollapseNearDuplicateText)
	}

	groups := buildGroups(valid, uf)

	d.log.Debug().
		Int("candidates", len(candidates)).
		Int("groups", len(groups)).
		Int("defects", defects.Total()).
		Msg("Deduplicated candidates")

	return groups, defects
}

// outboundLinks returns the normalized links of a candidate: its declared links
// followed by URLs found in the text.
func outboundLinks(c *models.Candidate) []string {
	raw := make([]string, 0, len(c.Links)+2)
	raw = append(raw, c.Links...)
	raw = append(raw, links.Extract(c.Text)...)
	return links.NormalizeAll(raw)
}

func buildGroups(valid []models.Candidate, uf *unionFind) []models.DuplicateGroup {
	groupOf := make(map[int]int)
	var groups []models.DuplicateGroup
	repIdx := make([]int, 0)

	for i := range valid {
		root := uf.find(i)
		gi, ok := groupOf[root]
		if !ok {
			gi = len(groups)
			groupOf[root] = gi
			groups = append(groups, models.DuplicateGroup{Reason: models.CollapseNone})
			repIdx = append(repIdx, i)
		}
		groups[gi].Members = append(groups[gi].Members, valid[i].ID)
		if preferRepresentative(&valid[i], &valid[repIdx[gi]]) {
			repIdx[gi] = i
		}
	}

	for gi := range groups {
		g := &groups[gi]
		g.Representative = valid[repIdx[gi]]
		g.CollapsedCount = len(g.Members)
		if g.CollapsedCount > 1 {
			g.Reason = uf.reasonOf(repIdx[gi])
		}
	}
	return groups
}

// preferRepresentative reports whether a should represent a group instead of b:
// higher engagement wins, then the earlier post, then the smaller ID.
func preferRepresentative(a, b *models.Candidate) bool {
	ea, eb := a.Engagement.Total(), b.Engagement.Total()
	if ea != eb {
		return ea > eb
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
