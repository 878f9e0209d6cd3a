package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// basicPointCloud is the basic implementation of the PointCloud interface backed by
// an ordered slice of points.
type basicPointCloud struct {
	points storage
	meta   MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: newSliceStorage(size),
		meta:   NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return cloud.points.Size()
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	return cloud.points.At(x, y, z)
}

// Set validates that the point is finite before appending it to the cloud.
func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return errors.Errorf("%s component (%v) is not a finite number", c.name, c.v)
		}
	}
	if err := cloud.points.Set(p, d); err != nil {
		return err
	}
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	cloud.points.Iterate(numBatches, myBatch, fn)
}
