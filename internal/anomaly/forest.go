package anomaly

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// maxSubsample caps how many rows each tree is grown from.
	maxSubsample = 256

	eulerGamma = 0.5772156649015329
)

// treeNode is one node of a randomized partitioning tree. Internal nodes
// split on (feature, threshold); leaves remember how many training rows they
// absorbed so path lengths can be adjusted for early termination.
type treeNode struct {
	feature int
	split   float64
	left    *treeNode
	right   *treeNode
	size    int
	leaf    bool
}

// forest is an isolation-style ensemble: anomalous rows isolate in fewer
// random splits, giving shorter average path lengths.
type forest struct {
	trees     []*treeNode
	subsample int
	// offset is the contamination quantile of the training scores; rows
	// scoring below it classify as outliers.
	offset float64
}

// fitForest grows the ensemble on standardized rows and derives the outlier
// offset from the training scores.
func fitForest(rows [][]float64, trees int, contamination float64, rng *rand.Rand) *forest {
	sub := len(rows)
	if sub > maxSubsample {
		sub = maxSubsample
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sub)))) + 1

	f := &forest{
		trees:     make([]*treeNode, 0, trees),
		subsample: sub,
	}

	for i := 0; i < trees; i++ {
		sample := make([][]float64, 0, sub)
		for _, idx := range rng.Perm(len(rows))[:sub] {
			sample = append(sample, rows[idx])
		}
		f.trees = append(f.trees, buildTree(sample, 0, maxDepth, rng))
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = f.score(row)
	}
	sort.Float64s(scores)
	f.offset = stat.Quantile(contamination, stat.Empirical, scores, nil)

	return f
}

func buildTree(rows [][]float64, depth, maxDepth int, rng *rand.Rand) *treeNode {
	if depth >= maxDepth || len(rows) <= 1 {
		return &treeNode{leaf: true, size: len(rows)}
	}

	// Only features that still vary within this partition are splittable.
	width := len(rows[0])
	splittable := make([]int, 0, width)
	for col := 0; col < width; col++ {
		lo, hi := columnRange(rows, col)
		if hi > lo {
			splittable = append(splittable, col)
		}
	}
	if len(splittable) == 0 {
		return &treeNode{leaf: true, size: len(rows)}
	}

	feature := splittable[rng.Intn(len(splittable))]
	lo, hi := columnRange(rows, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &treeNode{
		feature: feature,
		split:   split,
		left:    buildTree(left, depth+1, maxDepth, rng),
		right:   buildTree(right, depth+1, maxDepth, rng),
	}
}

func columnRange(rows [][]float64, col int) (lo, hi float64) {
	lo, hi = rows[0][col], rows[0][col]
	for _, row := range rows[1:] {
		if row[col] < lo {
			lo = row[col]
		}
		if row[col] > hi {
			hi = row[col]
		}
	}
	return lo, hi
}

// score returns the raw anomaly score for one row in [-1, +1]: values near +1
// indicate typical points, values near -1 indicate outliers.
func (f *forest) score(row []float64) float64 {
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avgPath := total / float64(len(f.trees))

	c := avgPathAdjust(float64(f.subsample))
	if c == 0 {
		return 0
	}
	// s in (0, 1]: s near 1 means quickly isolated (anomalous).
	s := math.Pow(2, -avgPath/c)
	return 1 - 2*s
}

// isOutlier classifies one row against the contamination offset.
func (f *forest) isOutlier(row []float64) bool {
	return f.score(row) < f.offset
}

func pathLength(node *treeNode, row []float64, depth int) float64 {
	if node.leaf {
		return float64(depth) + avgPathAdjust(float64(node.size))
	}
	if row[node.feature] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathAdjust is the expected path length of an unsuccessful BST search
// over n rows; it compensates leaves that stopped growing early.
func avgPathAdjust(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}
