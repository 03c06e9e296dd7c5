package spectral

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a directional spectrum JSON file as written by the fetcher
// and validates its grid shape.
func Load(path string) (Spectrum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spectrum{}, fmt.Errorf("failed to read spectrum file: %w", err)
	}
	var s Spectrum
	if err := json.Unmarshal(data, &s); err != nil {
		return Spectrum{}, fmt.Errorf("malformed spectrum file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Spectrum{}, fmt.Errorf("invalid spectrum in %s: %w", path, err)
	}
	return s, nil
}
