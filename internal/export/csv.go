// Package export writes the per-run CSV of newly discovered unreleased
// titles, one file per business date under the data directory.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/steam"
)

// columns fixes the CSV header order.
var columns = []string{
	"type",
	"name",
	"steam_appid",
	"developers",
	"publishers",
	"header_image",
	"website",
	"categories",
	"genres",
	"steam_url",
}

// WriteDiscoveries writes one row per discovered title to
// <dataDir>/exports/new_games_<date>.csv and returns the file path. An empty
// input writes nothing and returns an empty path.
func WriteDiscoveries(dataDir, date string, discoveries []*steam.AppDetails) (string, error) {
	if len(discoveries) == 0 {
		return "", nil
	}

	exportDir := filepath.Join(dataDir, "exports")
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", errors.Newf("creating export directory: %w", err).
			Category(errors.CategoryExport).
			Context("path", exportDir).
			Build()
	}

	path := filepath.Join(exportDir, fmt.Sprintf("new_games_%s.csv", date))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Newf("creating export file: %w", err).
			Category(errors.CategoryExport).
			Context("path", path).
			Build()
	}
	defer func() {
		_ = f.Close()
	}()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return "", errors.Newf("writing export header: %w", err).
			Category(errors.CategoryExport).
			Build()
	}
	for _, d := range discoveries {
		record := []string{
			d.Type,
			d.Name,
			strconv.FormatInt(d.AppID, 10),
			strings.Join(d.Developers, ";"),
			strings.Join(d.Publishers, ";"),
			d.HeaderImage,
			d.Website,
			strings.Join(d.Categories, ";"),
			strings.Join(d.Genres, ";"),
			fmt.Sprintf("https://store.steampowered.com/app/%d", d.AppID),
		}
		if err := w.Write(record); err != nil {
			return "", errors.Newf("writing export row for %d: %w", d.AppID, err).
				Category(errors.CategoryExport).
				Build()
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Newf("flushing export file: %w", err).
			Category(errors.CategoryExport).
			Context("path", path).
			Build()
	}
	return path, nil
}
