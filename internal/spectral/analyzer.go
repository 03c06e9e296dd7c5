// Package spectral extracts swell partitions from directional wave
// spectra: local energy maxima become peaks with height, period,
// direction and a confidence share of total energy.
package spectral

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
)

// Spectrum is a directional wave spectrum: Energy[f][d] is the energy in
// frequency bin f and direction bin d.
type Spectrum struct {
	Frequencies []float64   `json:"frequencies"` // Hz, ascending
	Directions  []float64   `json:"directions"`  // degrees, ascending
	Energy      [][]float64 `json:"energy"`      // m^2 per bin
}

// Validate checks the spectrum grid for shape consistency.
func (s Spectrum) Validate() error {
	if len(s.Frequencies) == 0 || len(s.Directions) == 0 {
		return fmt.Errorf("empty spectrum grid")
	}
	if len(s.Energy) != len(s.Frequencies) {
		return fmt.Errorf("energy rows %d != frequency bins %d", len(s.Energy), len(s.Frequencies))
	}
	for i, row := range s.Energy {
		if len(row) != len(s.Directions) {
			return fmt.Errorf("energy row %d has %d cols, want %d", i, len(row), len(s.Directions))
		}
	}
	return nil
}

// Peak is one swell partition recovered from the spectrum.
type Peak struct {
	Height     float64 `json:"height"`     // meters, Hs of the partition
	Period     float64 `json:"period"`     // seconds
	Direction  float64 `json:"direction"`  // degrees
	Confidence float64 `json:"confidence"` // fractional share of total energy
}

// Analyzer finds local maxima in the 2-D energy field and integrates
// their neighbourhoods into partition heights.
type Analyzer struct {
	cfg config.SpectralConfig
}

// NewAnalyzer builds an analyzer; the neighbourhood radius and peak cap
// come from configuration.
func NewAnalyzer(cfg config.SpectralConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// FindPeaks returns the spectrum's partitions ordered by height
// descending. A bin is a peak when it strictly exceeds all eight
// neighbours. Partition height is Hs = 4*sqrt(E) over the integrated
// neighbourhood; confidence is the neighbourhood's share of total energy.
func (a *Analyzer) FindPeaks(s Spectrum) ([]Peak, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	total := 0.0
	for _, row := range s.Energy {
		for _, e := range row {
			total += e
		}
	}
	if total <= 0 {
		return nil, nil
	}

	var peaks []Peak
	for fi := range s.Frequencies {
		for di := range s.Directions {
			if !a.isLocalMax(s, fi, di) {
				continue
			}
			e := a.integrate(s, fi, di)
			if e <= 0 {
				continue
			}
			freq := s.Frequencies[fi]
			if freq <= 0 {
				continue
			}
			peaks = append(peaks, Peak{
				Height:     4 * math.Sqrt(e),
				Period:     1 / freq,
				Direction:  s.Directions[di],
				Confidence: e / total,
			})
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Height > peaks[j].Height })
	if a.cfg.MaxPeaks > 0 && len(peaks) > a.cfg.MaxPeaks {
		peaks = peaks[:a.cfg.MaxPeaks]
	}

	log.Debug().Int("peaks", len(peaks)).Float64("total_energy", total).Msg("spectral partitions extracted")
	return peaks, nil
}

// isLocalMax reports whether the bin strictly dominates its neighbours.
// Direction wraps; frequency does not.
func (a *Analyzer) isLocalMax(s Spectrum, fi, di int) bool {
	v := s.Energy[fi][di]
	if v <= 0 {
		return false
	}
	nd := len(s.Directions)
	for df := -1; df <= 1; df++ {
		for dd := -1; dd <= 1; dd++ {
			if df == 0 && dd == 0 {
				continue
			}
			f := fi + df
			if f < 0 || f >= len(s.Frequencies) {
				continue
			}
			d := ((di+dd)%nd + nd) % nd
			if s.Energy[f][d] >= v {
				return false
			}
		}
	}
	return true
}

// integrate sums energy within the configured neighbourhood radius.
func (a *Analyzer) integrate(s Spectrum, fi, di int) float64 {
	r := a.cfg.PeakNeighborhood
	nd := len(s.Directions)
	sum := 0.0
	for df := -r; df <= r; df++ {
		f := fi + df
		if f < 0 || f >= len(s.Frequencies) {
			continue
		}
		for dd := -r; dd <= r; dd++ {
			d := ((di+dd)%nd + nd) % nd
			sum += s.Energy[f][d]
		}
	}
	return sum
}
