package ratecache

import (
	"github.com/shopspring/decimal"

	"cryptofmv/models"
)

// MissingMarker is the value stored for dates known to have no price.
const MissingMarker = "missing"

// Store is one chain's cached rates and known-missing dates. A date is in
// at most one of the two maps.
type Store struct {
	Rates   map[models.Date]decimal.Decimal
	Missing map[models.Date]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Rates:   make(map[models.Date]decimal.Decimal),
		Missing: make(map[models.Date]string),
	}
}

// Empty reports whether the store holds nothing.
func (s *Store) Empty() bool {
	return len(s.Rates) == 0 && len(s.Missing) == 0
}

// Rate returns the cached price for d.
func (s *Store) Rate(d models.Date) (decimal.Decimal, bool) {
	p, ok := s.Rates[d]
	return p, ok
}

// Merge adds entries that are not yet known. Existing entries are never
// overwritten and a date with a rate is never marked missing. It returns
// the number of rates and missing dates actually added.
func (s *Store) Merge(rates map[models.Date]decimal.Decimal, missing map[models.Date]string) (addedRates, addedMissing int) {
	for d, p := range rates {
		if _, ok := s.Rates[d]; ok {
			continue
		}
		if _, ok := s.Missing[d]; ok {
			continue
		}
		s.Rates[d] = p
		addedRates++
	}
	for d, v := range missing {
		if _, ok := s.Rates[d]; ok {
			continue
		}
		if _, ok := s.Missing[d]; ok {
			continue
		}
		if v == "" {
			v = MissingMarker
		}
		s.Missing[d] = v
		addedMissing++
	}
	return addedRates, addedMissing
}

// Resolve records rates found for dates that may previously have been
// marked missing, clearing those marks. Existing rates are kept.
func (s *Store) Resolve(rates map[models.Date]decimal.Decimal) int {
	resolved := 0
	for d, p := range rates {
		delete(s.Missing, d)
		if _, ok := s.Rates[d]; ok {
			continue
		}
		s.Rates[d] = p
		resolved++
	}
	return resolved
}

// Partition splits the dates a file needs into what the store already
// answers and what must be fetched.
type Partition struct {
	Cached       []models.Date
	KnownMissing []models.Date
	ToFetch      []models.Date
	// Expired counts distinct dates older than the horizon, which appear in
	// none of the lists.
	Expired int
}

// Partition classifies dates against the store. Dates before horizon are
// dropped. Each list is sorted and free of duplicates.
func (s *Store) Partition(dates []models.Date, horizon models.Date) Partition {
	var p Partition
	seen := make(map[models.Date]bool, len(dates))
	for _, d := range dates {
		if seen[d] {
			continue
		}
		seen[d] = true

		switch {
		case d.Before(horizon):
			p.Expired++
		case hasKey(s.Rates, d):
			p.Cached = append(p.Cached, d)
		case hasKey(s.Missing, d):
			p.KnownMissing = append(p.KnownMissing, d)
		default:
			p.ToFetch = append(p.ToFetch, d)
		}
	}
	models.SortDates(p.Cached)
	models.SortDates(p.KnownMissing)
	models.SortDates(p.ToFetch)
	return p
}

func hasKey[V any](m map[models.Date]V, d models.Date) bool {
	_, ok := m[d]
	return ok
}
