package site

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"flowval/domain/core"
)

// Site is one gauge location. Key is the file stem used on disk.
type Site struct {
	Key  core.SiteKey `json:"key" yaml:"key"`
	Name string       `json:"name" yaml:"name"`
}

func (s Site) String() string {
	if s.Name == "" {
		return s.Key.String()
	}
	return s.Name
}

// Catalog is an ordered site list. Position in the catalog is the column
// index of the site in every assembled matrix.
type Catalog []Site

// DefaultCatalog returns the ten Research Triangle sites of the stationary study.
func DefaultCatalog() Catalog {
	return Catalog{
		{Key: "trainingLittleRiverRaleighInflow", Name: "Little River Raleigh"},
		{Key: "trainingOWASAInflow", Name: "OWASA"},
		{Key: "trainingClaytonGageInflow", Name: "Clayton"},
		{Key: "trainingCrabtreeCreekInflow", Name: "Crabtree Creek"},
		{Key: "trainingFallsLakeInflow", Name: "Falls Lake"},
		{Key: "trainingJordanLakeInflow", Name: "Jordan Lake"},
		{Key: "trainingLakeWBInflow", Name: "Lake Wheeler/Benson"},
		{Key: "trainingLillingtonInflow", Name: "Lillington"},
		{Key: "trainingLittleRiverInflow", Name: "Little River"},
		{Key: "trainingMichieInflow", Name: "Lake Michie"},
	}
}

// NewCatalog pairs keys with display names. Names may be empty; keys must be
// unique and usable as file stems.
func NewCatalog(keys, names []string) (Catalog, error) {
	if len(names) != 0 && len(names) != len(keys) {
		return nil, fmt.Errorf("catalog has %d keys but %d names", len(keys), len(names))
	}
	seen := make(map[core.SiteKey]bool, len(keys))
	catalog := make(Catalog, 0, len(keys))
	for i, raw := range keys {
		key, err := core.ParseSiteKey(raw)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate site key %q", key)
		}
		seen[key] = true

		s := Site{Key: key}
		if len(names) != 0 {
			s.Name = strings.TrimSpace(names[i])
		}
		catalog = append(catalog, s)
	}
	return catalog, nil
}

// FromKeys builds a catalog with no display names, e.g. from discovered files.
func FromKeys(keys []core.SiteKey) Catalog {
	catalog := make(Catalog, len(keys))
	for i, k := range keys {
		catalog[i] = Site{Key: k}
	}
	return catalog
}

func (c Catalog) Len() int { return len(c) }

// Keys returns site keys in column order.
func (c Catalog) Keys() []core.SiteKey {
	keys := make([]core.SiteKey, len(c))
	for i, s := range c {
		keys[i] = s.Key
	}
	return keys
}

// Names returns display names in column order, falling back to keys.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.String()
	}
	return names
}

// Sorted returns a copy ordered by key.
func (c Catalog) Sorted() Catalog {
	out := make(Catalog, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Index returns the column of key, or -1.
func (c Catalog) Index(key core.SiteKey) int {
	for i, s := range c {
		if s.Key == key {
			return i
		}
	}
	return -1
}

// Lookup resolves a site by key, display name (case-insensitive) or column index.
func (c Catalog) Lookup(ref string) (Site, int, error) {
	ref = strings.TrimSpace(ref)
	if i := c.Index(core.SiteKey(ref)); i >= 0 {
		return c[i], i, nil
	}
	for i, s := range c {
		if strings.EqualFold(s.Name, ref) {
			return s, i, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 0 && n < len(c) {
		return c[n], n, nil
	}
	return Site{}, -1, fmt.Errorf("site %q not in catalog", ref)
}

// Equal reports whether both catalogs list the same keys in the same order.
func (c Catalog) Equal(other Catalog) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i].Key != other[i].Key {
			return false
		}
	}
	return true
}

// Arrange returns the sites of keys in that order, taking display names from
// c. Keys missing from c keep an empty name.
func (c Catalog) Arrange(keys []core.SiteKey) Catalog {
	out := make(Catalog, len(keys))
	for i, k := range keys {
		out[i] = Site{Key: k}
		if j := c.Index(k); j >= 0 {
			out[i] = c[j]
		}
	}
	return out
}
