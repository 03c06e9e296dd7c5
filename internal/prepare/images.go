package prepare

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
)

// Image types in selection-priority order.
const (
	ImagePressure  = "pressure"
	ImageModel     = "model"
	ImageSatellite = "satellite"
	ImageSST       = "sst"
)

// Image is one chart selected for the vision specialist.
type Image struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Detail      string `json:"detail"` // high|auto|low
	Description string `json:"description,omitempty"`

	taken time.Time // file mtime, used for temporal ordering
}

// chartEntry is one record in charts/metadata.json.
type chartEntry struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	FilePath string `json:"file_path"`
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Collector gathers chart imagery from the data directory layout:
// charts/ for surface pressure analyses, satellite/satellite/ for
// satellite frames and models/ for model graphics.
type Collector struct {
	cfg  config.ImagesConfig
	root string
}

// NewCollector builds a collector rooted at the data directory.
func NewCollector(cfg config.ImagesConfig, root string) *Collector {
	return &Collector{cfg: cfg, root: root}
}

// Collect walks the data directories and returns every usable image,
// typed and tagged with its configured detail level.
func (c *Collector) Collect() []Image {
	var images []Image
	images = append(images, c.collectCharts()...)
	images = append(images, c.collectDir(filepath.Join(c.root, "satellite", "satellite"), ImageSatellite)...)
	images = append(images, c.collectDir(filepath.Join(c.root, "models"), ImageModel)...)
	return images
}

// collectCharts prefers the fetcher's metadata.json manifest, which
// records per-chart fetch status; it falls back to a directory walk.
func (c *Collector) collectCharts() []Image {
	dir := filepath.Join(c.root, "charts")

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return c.collectDir(dir, ImagePressure)
	}

	var entries []chartEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Msg("unreadable chart manifest, walking directory instead")
		return c.collectDir(dir, ImagePressure)
	}

	var images []Image
	for _, entry := range entries {
		if entry.Status != "success" || entry.FilePath == "" {
			continue
		}
		path := entry.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		images = append(images, c.typed(path, ImagePressure))
	}
	return images
}

func (c *Collector) collectDir(dir, imageType string) []Image {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var images []Image
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		images = append(images, c.typed(filepath.Join(dir, entry.Name()), imageType))
	}
	return images
}

// typed classifies the image, rerouting sea surface temperature charts
// to their own low-detail class.
func (c *Collector) typed(path, imageType string) Image {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(name, "sst_") || strings.Contains(name, "sea_surface_temp") {
		imageType = ImageSST
	}
	img := Image{Path: path, Type: imageType, Detail: c.detailFor(imageType)}
	if info, err := os.Stat(path); err == nil {
		img.taken = info.ModTime()
	}
	return img
}

func (c *Collector) detailFor(imageType string) string {
	switch imageType {
	case ImagePressure:
		return c.cfg.PressureDetail
	case ImageModel:
		return c.cfg.ModelDetail
	case ImageSatellite:
		return c.cfg.SatelliteDetail
	default:
		return c.cfg.SSTDetail
	}
}

// Select applies the priority budget: pressure charts first (up to the
// per-type cap, oldest to newest so the sequence reads forward in time),
// then model graphics, then the latest satellite frame and one SST
// chart, never exceeding the total cap. Each selected image carries a
// description the vision prompt can reference.
func (c *Collector) Select(images []Image) []Image {
	byType := map[string][]Image{}
	for _, img := range images {
		byType[img.Type] = append(byType[img.Type], img)
	}

	for _, t := range []string{ImagePressure, ImageModel} {
		pool := byType[t]
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].taken.Before(pool[j].taken) })
	}
	sat := byType[ImageSatellite]
	sort.SliceStable(sat, func(i, j int) bool { return sat[i].taken.After(sat[j].taken) })

	budgets := []struct {
		imageType string
		max       int
	}{
		{ImagePressure, c.cfg.MaxPerType},
		{ImageModel, c.cfg.MaxPerType},
		{ImageSatellite, 1},
		{ImageSST, 1},
	}

	var selected []Image
	for _, b := range budgets {
		pool := byType[b.imageType]
		for i := 0; i < len(pool) && i < b.max; i++ {
			if len(selected) >= c.cfg.MaxTotal {
				return selected
			}
			img := pool[i]
			img.Description = describeImage(b.imageType, i)
			selected = append(selected, img)
		}
	}
	return selected
}

// describeImage labels the image by its role in the selected sequence.
// Pressure charts past the first are forecast frames at 24-hour steps.
func describeImage(imageType string, seq int) string {
	switch imageType {
	case ImagePressure:
		if seq == 0 {
			return "Surface pressure analysis"
		}
		return fmt.Sprintf("Pressure forecast T+%dhr", seq*24)
	case ImageModel:
		return fmt.Sprintf("Wave model graphic %d", seq+1)
	case ImageSatellite:
		return "Latest satellite frame"
	default:
		return "Sea surface temperature chart"
	}
}

// Per-image token cost by detail level.
var imageTokens = map[string]int{"high": 3000, "auto": 1500, "low": 500}

// Prompt overheads: instruction scaffolding plus the reserved response
// budget.
const (
	promptOverheadTokens   = 5000
	responseBudgetTokens   = 10000
	charsPerToken          = 4
)

// EstimateTokens approximates the total token footprint of a specialist
// call: text at four characters per token, fixed prompt and response
// overheads, and a per-image cost by detail level.
func EstimateTokens(text string, images []Image) int {
	total := len(text)/charsPerToken + promptOverheadTokens + responseBudgetTokens
	for _, img := range images {
		cost, ok := imageTokens[img.Detail]
		if !ok {
			cost = imageTokens["auto"]
		}
		total += cost
	}
	return total
}
