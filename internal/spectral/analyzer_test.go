package spectral

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/config"
)

func testSpectrum() Spectrum {
	freqs := make([]float64, 10)
	for i := range freqs {
		freqs[i] = 0.05 + 0.01*float64(i)
	}
	dirs := make([]float64, 16)
	for i := range dirs {
		dirs[i] = 22.5 * float64(i)
	}
	energy := make([][]float64, len(freqs))
	for i := range energy {
		energy[i] = make([]float64, len(dirs))
	}
	return Spectrum{Frequencies: freqs, Directions: dirs, Energy: energy}
}

// addBump places a peak with an immediate ring of lower energy around it.
func addBump(s *Spectrum, fi, di int, center, ring float64) {
	nd := len(s.Directions)
	s.Energy[fi][di] = center
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
			s.Energy[f][d] = ring
		}
	}
}

func TestFindPeaks_TwoPartitions(t *testing.T) {
	s := testSpectrum()
	// NW groundswell near 0.07 Hz (~14s) and a weaker trade windswell
	// near 0.13 Hz (~7.7s).
	addBump(&s, 2, 14, 0.30, 0.01)
	addBump(&s, 8, 3, 0.10, 0.005)

	a := NewAnalyzer(config.Default().Spectral)
	peaks, err := a.FindPeaks(s)
	require.NoError(t, err)
	require.Len(t, peaks, 2)

	// Ordered by height descending.
	assert.Greater(t, peaks[0].Height, peaks[1].Height)

	// Period is the reciprocal of peak frequency.
	assert.InDelta(t, 1/0.07, peaks[0].Period, 1e-9)
	assert.InDelta(t, 1/0.13, peaks[1].Period, 1e-9)

	assert.InDelta(t, 315.0, peaks[0].Direction, 1e-9)
	assert.InDelta(t, 67.5, peaks[1].Direction, 1e-9)

	// Hs = 4*sqrt(E) over the integrated neighbourhood.
	eA := 0.30 + 8*0.01
	assert.InDelta(t, 4*math.Sqrt(eA), peaks[0].Height, 1e-9)

	// Confidence is the fractional share of total energy.
	total := eA + 0.10 + 8*0.005
	assert.InDelta(t, eA/total, peaks[0].Confidence, 1e-9)
	assert.LessOrEqual(t, peaks[0].Confidence+peaks[1].Confidence, 1.0+1e-9)
}

func TestFindPeaks_DirectionWrap(t *testing.T) {
	s := testSpectrum()
	// Peak at direction bin 0 with its ring wrapping to bin 15.
	addBump(&s, 4, 0, 0.2, 0.01)

	a := NewAnalyzer(config.Default().Spectral)
	peaks, err := a.FindPeaks(s)
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.InDelta(t, 0.0, peaks[0].Direction, 1e-9)
}

func TestFindPeaks_EmptyAndFlat(t *testing.T) {
	a := NewAnalyzer(config.Default().Spectral)

	peaks, err := a.FindPeaks(testSpectrum())
	require.NoError(t, err)
	assert.Empty(t, peaks, "zero-energy spectrum has no partitions")

	_, err = a.FindPeaks(Spectrum{})
	assert.Error(t, err)

	bad := testSpectrum()
	bad.Energy = bad.Energy[:3]
	_, err = a.FindPeaks(bad)
	assert.Error(t, err)
}

func TestFindPeaks_MaxPeaksCap(t *testing.T) {
	s := testSpectrum()
	addBump(&s, 1, 1, 0.4, 0.01)
	addBump(&s, 4, 5, 0.3, 0.01)
	addBump(&s, 7, 9, 0.2, 0.01)
	addBump(&s, 8, 13, 0.1, 0.01)

	cfg := config.Default().Spectral
	cfg.MaxPeaks = 2
	peaks, err := NewAnalyzer(cfg).FindPeaks(s)
	require.NoError(t, err)
	assert.Len(t, peaks, 2)
}

func TestLoad_RoundTripAndErrors(t *testing.T) {
	dir := t.TempDir()

	s := testSpectrum()
	addBump(&s, 2, 14, 0.3, 0.01)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	path := filepath.Join(dir, "51201_spec.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Frequencies, loaded.Frequencies)
	assert.InDelta(t, 0.3, loaded.Energy[2][14], 1e-12)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	ragged := s
	ragged.Energy = ragged.Energy[:3]
	data, err = json.Marshal(ragged)
	require.NoError(t, err)
	shape := filepath.Join(dir, "ragged.json")
	require.NoError(t, os.WriteFile(shape, data, 0o644))
	_, err = Load(shape)
	assert.Error(t, err)
}
