package topicmodel

import (
	"math"
	"sort"
)

// Outlier is the local topic id assigned to points HDBSCAN would call
// noise (§4.7, §9 glossary: "local id = -1").
const Outlier = -1

type edge struct {
	a, b int
	dist float64
}

// ClusterDensity approximates HDBSCAN(min_cluster_size, euclidean, EOM) with
// single-linkage agglomeration: build the full minimum spanning tree over
// euclidean distances, then scan its edges in ascending order (the
// single-linkage dendrogram merge order) evaluating, at each prefix, how
// many resulting clusters meet minClusterSize — analogous to HDBSCAN's
// "excess of mass" stability selection, choosing the prefix that maximizes
// the count of clusters clearing the size floor (the longest such prefix
// when several tie). Points not in any
// surviving cluster at the chosen cut are labeled Outlier.
func ClusterDensity(points [][]float64, minClusterSize int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Outlier
	}
	if n == 0 {
		return labels
	}
	if minClusterSize < 1 {
		minClusterSize = 1
	}
	if n < minClusterSize {
		return labels
	}

	edges := mstEdges(points)
	sort.Slice(edges, func(i, j int) bool { return edges[i].dist < edges[j].dist })

	uf := newUnionFind(n)
	bestCut := -1
	bestScore := -1
	for i, e := range edges {
		uf.union(e.a, e.b)
		if score := countValidClusters(uf, n, minClusterSize); score >= bestScore {
			bestScore = score
			bestCut = i
		}
	}

	uf = newUnionFind(n)
	for i := 0; i <= bestCut; i++ {
		uf.union(edges[i].a, edges[i].b)
	}

	sizes := make(map[int]int)
	for i := 0; i < n; i++ {
		sizes[uf.find(i)]++
	}
	rootToLocal := make(map[int]int)
	nextID := 0
	for i := 0; i < n; i++ {
		root := uf.find(i)
		if sizes[root] < minClusterSize {
			continue
		}
		id, ok := rootToLocal[root]
		if !ok {
			id = nextID
			rootToLocal[root] = id
			nextID++
		}
		labels[i] = id
	}
	return labels
}

func countValidClusters(uf *unionFind, n, minSize int) int {
	sizes := make(map[int]int)
	for i := 0; i < n; i++ {
		sizes[uf.find(i)]++
	}
	count := 0
	for _, s := range sizes {
		if s >= minSize {
			count++
		}
	}
	return count
}

// mstEdges builds a minimum spanning tree over n points via Prim's
// algorithm, returning its n-1 edges with euclidean distances.
func mstEdges(points [][]float64) []edge {
	n := len(points)
	inTree := make([]bool, n)
	minDist := make([]float64, n)
	minFrom := make([]int, n)
	for i := range minDist {
		minDist[i] = math.Inf(1)
		minFrom[i] = -1
	}
	minDist[0] = 0
	var edges []edge

	for iter := 0; iter < n; iter++ {
		u := -1
		best := math.Inf(1)
		for v := 0; v < n; v++ {
			if !inTree[v] && minDist[v] < best {
				best = minDist[v]
				u = v
			}
		}
		if u == -1 {
			break
		}
		inTree[u] = true
		if minFrom[u] != -1 {
			edges = append(edges, edge{a: minFrom[u], b: u, dist: minDist[u]})
		}
		for v := 0; v < n; v++ {
			if inTree[v] {
				continue
			}
			d := euclidean(points[u], points[v])
			if d < minDist[v] {
				minDist[v] = d
				minFrom[v] = u
			}
		}
	}
	return edges
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
