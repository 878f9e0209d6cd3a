package pointcloud

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CloudContains is a silly helper method.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// Positions returns the positions of every point in cloud order.
func Positions(cloud PointCloud) []r3.Vector {
	out := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		out = append(out, p)
		return true
	})
	return out
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	point := r3.Vector{}
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		point = point.Add(p)
		return true
	})
	return point.Mul(1 / float64(pc.Size()))
}

// CloudMatrix returns the positions of the cloud as an N x 3 matrix, one row per point.
func CloudMatrix(pc PointCloud) *mat.Dense {
	if pc.Size() == 0 {
		return nil
	}
	data := make([]float64, 0, 3*pc.Size())
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		data = append(data, p.X, p.Y, p.Z)
		return true
	})
	return mat.NewDense(pc.Size(), 3, data)
}
