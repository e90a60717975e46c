package dedup

import "github.com/thebtf/xfeed/pkg/models"

// unionFind tracks duplicate components and the strongest collapse reason
// among the edges that formed each component.
type unionFind struct {
	parent []int
	rank   []int
	reason []models.CollapseReason
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
		reason: make([]models.CollapseReason, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.reason[i] = models.CollapseNone
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int, reason models.CollapseReason) {
	ra, rb := u.find(a), u.find(b)
	best := strongest(reason, strongest(u.reason[ra], u.reason[rb]))
	if ra == rb {
		u.reason[ra] = best
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	u.reason[ra] = best
}

func (u *unionFind) reasonOf(x int) models.CollapseReason {
	return u.reason[u.find(x)]
}

func strongest(a, b models.CollapseReason) models.CollapseReason {
	if b.Precedence() < a.Precedence() {
		return b
	}
	return a
}
