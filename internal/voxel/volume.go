// Package voxel provides in-memory voxel volumes loaded from NIfTI images.
// A Volume is the common currency between mask files on disk and the
// activation images stored in the dataset: a flat float64 slice in x-fastest
// order plus the grid dimensions it was sampled on.
package voxel

import (
	"fmt"
	"os"

	"github.com/henghuang/nifti"
)

// Volume is a single 3D voxel grid. Data is laid out x-fastest
// (index = x + y*dx + z*dx*dy) and always has len == NVoxels().
type Volume struct {
	Dims [3]int
	Data []float64
}

// NVoxels returns the number of voxels in the grid.
func (v *Volume) NVoxels() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// ActiveCount returns the number of voxels with a value above zero.
func (v *Volume) ActiveCount() int {
	n := 0
	for _, d := range v.Data {
		if d > 0 {
			n++
		}
	}
	return n
}

// New creates an empty volume with the given dimensions.
func New(dims [3]int) *Volume {
	return &Volume{Dims: dims, Data: make([]float64, dims[0]*dims[1]*dims[2])}
}

// LoadNIfTI reads a .nii or .nii.gz file into a Volume. Only the first
// timepoint is read. An unreadable path is a hard error; callers must not
// continue with a partially loaded mask.
func LoadNIfTI(path string) (*Volume, error) {
	// The nifti reader has no error return on load, so verify readability
	// up front and surface I/O failures to the caller.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", path, err)
	}
	f.Close()

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	dims := img.GetDims()
	dx, dy, dz := dims[0], dims[1], dims[2]
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return nil, fmt.Errorf("load mask %s: empty or malformed image dimensions %v", path, dims)
	}

	v := New([3]int{dx, dy, dz})
	i := 0
	for z := 0; z < dz; z++ {
		for y := 0; y < dy; y++ {
			for x := 0; x < dx; x++ {
				v.Data[i] = float64(img.GetAt(x, y, z, 0))
				i++
			}
		}
	}
	return v, nil
}
