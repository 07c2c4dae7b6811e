package domain

import "math"

// Model magnitude grid: [0, 14) in 0.5 mag steps.
const (
	modelMagMin  = 0.0
	modelMagMax  = 14.0
	modelMagStep = 0.5
)

// Curve is a named throughput reference drawn for comparison.
type Curve struct {
	Label   string
	Color   string
	RefFlux float64 // photons per resolution element per 60 s at V=0
	RON     float64 // read-out noise, electrons
}

// SNModel evaluates the photon plus read-noise S/N model over the model
// magnitude grid and returns parallel magnitude and S/N slices.
func SNModel(refflux, ron float64) (mags, sn []float64) {
	n := int(math.Ceil((modelMagMax - modelMagMin) / modelMagStep))
	mags = make([]float64, n)
	sn = make([]float64, n)
	for i := range n {
		mag := modelMagMin + float64(i)*modelMagStep
		signal := refflux * math.Pow(10, -0.4*mag)
		mags[i] = mag
		sn[i] = signal / math.Sqrt(signal+3*ron*ron)
	}
	return mags, sn
}
