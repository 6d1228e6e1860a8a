package stacking

import (
	"gonum.org/v1/gonum/floats"

	"dicom2vti/internal/models"
)

// Stats summarises the sample values of a volume
type Stats struct {
	Min  float64
	Max  float64
	Mean float64
}

// Summarize computes the range and mean over every sample of v.
// Planes are converted one at a time so memory stays bounded by a single plane.
func Summarize(v *models.Volume) Stats {
	if v.Empty() {
		return Stats{}
	}

	size := v.Scalar.Size()
	samples := v.Dims[0] * v.Dims[1] * v.Components
	buf := make([]float64, samples)

	stats := Stats{Min: v.Scalar.Decode(v.Planes[0][:size])}
	stats.Max = stats.Min
	total := 0.0

	for _, plane := range v.Planes {
		for i := range buf {
			buf[i] = v.Scalar.Decode(plane[i*size : (i+1)*size])
		}
		stats.Min = min(stats.Min, floats.Min(buf))
		stats.Max = max(stats.Max, floats.Max(buf))
		total += floats.Sum(buf)
	}

	stats.Mean = total / float64(samples*len(v.Planes))
	return stats
}
