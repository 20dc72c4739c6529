package app

import (
	"flowval/domain/site"
	"flowval/internal/config"
	"flowval/ports"
)

// SiteFiles is the input files found for one catalog site. Missing files are "".
type SiteFiles struct {
	Site       site.Site
	Historical string
	Synthetic  string
	Ensemble   string
}

// Complete reports whether every analysis can run for the site.
func (f SiteFiles) Complete() bool {
	return f.Historical != "" && f.Synthetic != "" && f.Ensemble != ""
}

// Inventory locates the input files of every configured site.
func Inventory(cfg *config.Config, locator ports.GridLocator) ([]SiteFiles, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	find := func(dir string, s site.Site, suffix string) string {
		path, err := locator.Resolve(dir, s.Key, suffix)
		if err != nil {
			return ""
		}
		return path
	}

	out := make([]SiteFiles, len(catalog))
	for i, s := range catalog {
		out[i] = SiteFiles{
			Site:       s,
			Historical: find(cfg.Data.HistoricalDir, s, cfg.Data.HistoricalSuffix),
			Synthetic:  find(cfg.Data.SyntheticDir, s, cfg.Data.SyntheticSuffix),
			Ensemble:   find(cfg.Data.SyntheticDir, s, cfg.Data.EnsembleSuffix),
		}
	}
	return out, nil
}
