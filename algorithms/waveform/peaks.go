package waveform

// Peak is a detected local maximum with its prominence and its width at half
// prominence, in fractional samples.
type Peak struct {
	Index      int
	Height     float64
	Prominence float64
	Width      float64
}

// FindPeaks detects local maxima whose topographic prominence reaches
// minProminence. Plateaus resolve to their midpoint. Prominence is measured
// against the lowest contour line that separates a peak from any higher
// terrain, searching outward until a higher sample or the signal border.
func FindPeaks(x []float64, minProminence float64) []Peak {
	var peaks []Peak
	for _, idx := range localMaxima(x) {
		prom, leftBase, rightBase := prominence(x, idx)
		if prom < minProminence {
			continue
		}
		peaks = append(peaks, Peak{
			Index:      idx,
			Height:     x[idx],
			Prominence: prom,
			Width:      widthAtHalfProminence(x, idx, prom, leftBase, rightBase),
		})
	}
	return peaks
}

// localMaxima returns the indices of strict local maxima, with flat tops
// reduced to their middle sample
func localMaxima(x []float64) []int {
	var maxima []int
	i := 1
	for i < len(x)-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < len(x)-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				maxima = append(maxima, (i+ahead-1)/2)
				i = ahead
				continue
			}
		}
		i++
	}
	return maxima
}

// prominence computes the topographic prominence of the peak at idx and the
// base indices bounding its contour on each side
func prominence(x []float64, idx int) (prom float64, leftBase, rightBase int) {
	h := x[idx]

	leftMin := h
	leftBase = idx
	for j := idx - 1; j >= 0; j-- {
		if x[j] > h {
			break
		}
		if x[j] < leftMin {
			leftMin = x[j]
			leftBase = j
		}
	}

	rightMin := h
	rightBase = idx
	for j := idx + 1; j < len(x); j++ {
		if x[j] > h {
			break
		}
		if x[j] < rightMin {
			rightMin = x[j]
			rightBase = j
		}
	}

	base := max(leftMin, rightMin)
	return h - base, leftBase, rightBase
}

// widthAtHalfProminence measures the peak's horizontal extent at the height
// halfway down its prominence, interpolating the crossing points between
// samples
func widthAtHalfProminence(x []float64, idx int, prom float64, leftBase, rightBase int) float64 {
	evalHeight := x[idx] - 0.5*prom

	k := idx
	for k > leftBase && x[k] > evalHeight {
		k--
	}
	leftIP := float64(k)
	if x[k] < evalHeight {
		leftIP += (evalHeight - x[k]) / (x[k+1] - x[k])
	}

	k = idx
	for k < rightBase && x[k] > evalHeight {
		k++
	}
	rightIP := float64(k)
	if x[k] < evalHeight {
		rightIP -= (evalHeight - x[k]) / (x[k-1] - x[k])
	}

	return rightIP - leftIP
}
