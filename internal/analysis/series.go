package analysis

import (
	"math"
	"time"

	"flood-watcher/internal/storage"
)

// hourlySeries is a gap-free sequence of hourly water levels starting at
// Start, one value per hour.
type hourlySeries struct {
	Start  time.Time
	Values []float64
}

// resampleHourly buckets raw readings onto an hourly grid and linearly
// interpolates interior gaps. Multiple readings inside one hour are
// averaged. Leading and trailing gaps cannot be interpolated and are
// trimmed off.
func resampleHourly(readings []storage.Reading) hourlySeries {
	if len(readings) == 0 {
		return hourlySeries{}
	}

	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	var minH, maxH int64
	first := true
	for _, r := range readings {
		h := r.Timestamp.Truncate(time.Hour).Unix()
		sums[h] += r.LevelM
		counts[h]++
		if first || h < minH {
			minH = h
		}
		if first || h > maxH {
			maxH = h
		}
		first = false
	}

	n := int((maxH-minH)/3600) + 1
	values := make([]float64, n)
	present := make([]bool, n)
	for i := 0; i < n; i++ {
		h := minH + int64(i)*3600
		if c := counts[h]; c > 0 {
			values[i] = sums[h] / float64(c)
			present[i] = true
		}
	}

	interpolateGaps(values, present)

	// Trim anything interpolation could not reach.
	lo, hi := 0, n
	for lo < hi && !present[lo] {
		lo++
	}
	for hi > lo && !present[hi-1] {
		hi--
	}
	if lo >= hi {
		return hourlySeries{}
	}

	return hourlySeries{
		Start:  time.Unix(minH+int64(lo)*3600, 0).UTC(),
		Values: values[lo:hi],
	}
}

// interpolateGaps fills interior runs of missing values linearly between
// the surrounding known points, marking them present.
func interpolateGaps(values []float64, present []bool) {
	prev := -1
	for i := range values {
		if !present[i] {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (values[i] - values[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				values[j] = values[prev] + step*float64(j-prev)
				present[j] = true
			}
		}
		prev = i
	}
}

// at returns the series value for a wall-clock hour, if covered.
func (s hourlySeries) at(t time.Time) (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	idx := int(t.Truncate(time.Hour).Sub(s.Start) / time.Hour)
	if idx < 0 || idx >= len(s.Values) {
		return 0, false
	}
	return s.Values[idx], true
}

// nearest returns the value at the covered hour closest to t. Unlike
// at, a time outside the series clamps to the nearest endpoint.
func (s hourlySeries) nearest(t time.Time) (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	idx := int(math.Round(t.Sub(s.Start).Hours()))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Values) {
		idx = len(s.Values) - 1
	}
	return s.Values[idx], true
}

// pearson computes the correlation coefficient of two equal-length
// samples. Returns 0 when either sample has no variance.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n == 0 {
		return 0
	}
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/n, sumB/n

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// leastSquares fits y = slope*x + intercept by ordinary least squares.
func leastSquares(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var num, den float64
	for i := range x {
		num += (x[i] - meanX) * (y[i] - meanY)
		den += (x[i] - meanX) * (x[i] - meanX)
	}
	if den == 0 {
		return 0, meanY
	}
	slope = num / den
	intercept = meanY - slope*meanX
	return slope, intercept
}
