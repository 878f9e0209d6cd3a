package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData is a tiny struct to facilitate returning nearest neighbors in a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

// storage is a minimal interface for the points of a PointCloud.
type storage interface {
	Size() int
	Set(p r3.Vector, d Data) error
	At(x, y, z float64) (Data, bool)
	Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool)
}

// sliceStorage keeps points in insertion order. indexMap points at the first point stored at
// each position.
type sliceStorage struct {
	points   []PointAndData
	indexMap map[r3.Vector]int
}

func newSliceStorage(size int) *sliceStorage {
	return &sliceStorage{points: make([]PointAndData, 0, size), indexMap: make(map[r3.Vector]int, size)}
}

func (ss *sliceStorage) Size() int {
	return len(ss.points)
}

func (ss *sliceStorage) Set(p r3.Vector, d Data) error {
	if _, ok := ss.indexMap[p]; !ok {
		ss.indexMap[p] = len(ss.points)
	}
	ss.points = append(ss.points, PointAndData{P: p, D: d})
	return nil
}

func (ss *sliceStorage) At(x, y, z float64) (Data, bool) {
	idx, ok := ss.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return nil, false
	}
	return ss.points[idx].D, true
}

func (ss *sliceStorage) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	lowerBound := 0
	upperBound := ss.Size()
	if numBatches > 0 {
		batchSize := (ss.Size() + numBatches - 1) / numBatches
		lowerBound = myBatch * batchSize
		upperBound = (myBatch + 1) * batchSize
	}
	if upperBound > ss.Size() {
		upperBound = ss.Size()
	}
	for i := lowerBound; i < upperBound; i++ {
		if cont := fn(ss.points[i].P, ss.points[i].D); !cont {
			return
		}
	}
}
