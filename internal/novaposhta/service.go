package novaposhta

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nazariinalyvaiko/app-for-crm-test/internal/platform/ttlcache"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/telemetry"
	"github.com/nazariinalyvaiko/app-for-crm-test/internal/upstream"
)

const (
	DefaultCacheTTL       = time.Hour
	DefaultStaleRetention = 24 * time.Hour

	minQueryLength = 2
	areasCacheKey  = "areas"
)

var (
	ErrQueryTooShort    = errors.New("query parameter is required (min 2 characters)")
	ErrLocationRequired = errors.New("location parameter is required")
)

// CityOption is a city as shown in the address form.
type CityOption struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
	Area string `json:"area"`
}

// WarehouseOption is a pickup point as shown in the address form.
type WarehouseOption struct {
	Number      string `json:"number"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// CitiesResult never carries an upstream error; failures set Success to
// false with a Message.
type CitiesResult struct {
	Success bool         `json:"success"`
	Cities  []CityOption `json:"cities"`
	Message string       `json:"message,omitempty"`
}

type WarehousesResult struct {
	Success    bool              `json:"success"`
	Warehouses []WarehouseOption `json:"warehouses"`
	Message    string            `json:"message,omitempty"`
}

// Lookup is the subset of Client the Service depends on.
type Lookup interface {
	FindCities(ctx context.Context, query, areaRef string, limit int) ([]City, error)
	Areas(ctx context.Context) ([]Area, error)
	Warehouses(ctx context.Context, q WarehouseQuery) ([]Warehouse, error)
}

type ServiceConfig struct {
	CacheTTL       time.Duration
	StaleRetention time.Duration
	Clock          func() time.Time
}

// Service memoizes lookups for the address form and falls back to the last
// known result when Nova Poshta throttles.
type Service struct {
	lookup     Lookup
	cities     *ttlcache.Cache[string, []CityOption]
	warehouses *ttlcache.Cache[string, []WarehouseOption]
	areas      *ttlcache.Cache[string, []Area]
	logger     *slog.Logger
	metrics    *upstream.Metrics
}

func NewService(lookup Lookup, cfg ServiceConfig, logger *slog.Logger, metrics *upstream.Metrics) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.StaleRetention < 0 {
		cfg.StaleRetention = 0
	}
	opts := []ttlcache.Option{ttlcache.WithStaleRetention(cfg.StaleRetention)}
	if cfg.Clock != nil {
		opts = append(opts, ttlcache.WithClock(cfg.Clock))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		lookup:     lookup,
		cities:     ttlcache.New[string, []CityOption](cfg.CacheTTL, opts...),
		warehouses: ttlcache.New[string, []WarehouseOption](cfg.CacheTTL, opts...),
		areas:      ttlcache.New[string, []Area](cfg.CacheTTL, opts...),
		logger:     logger,
		metrics:    metrics,
	}
}

// SearchCities returns ErrQueryTooShort for queries under two characters;
// every other failure is reported inside the result.
func (s *Service) SearchCities(ctx context.Context, query, region string) (CitiesResult, error) {
	query = strings.TrimSpace(query)
	region = strings.TrimSpace(region)
	if utf8.RuneCountInString(query) < minQueryLength {
		return CitiesResult{}, ErrQueryTooShort
	}

	regionKey := fold(region)
	if regionKey == "" {
		regionKey = "all"
	}
	key := "cities:" + fold(query) + ":" + regionKey

	if cached, ok := s.cities.Get(key); ok {
		s.metrics.RecordCacheLookup(ctx, "cities", "hit")
		return CitiesResult{Success: true, Cities: cached}, nil
	}
	s.metrics.RecordCacheLookup(ctx, "cities", "miss")

	var areaRef string
	if region != "" {
		areaRef = s.findAreaRef(ctx, region)
	}

	found, err := s.lookup.FindCities(ctx, query, areaRef, cityLimit)
	if err != nil {
		if stale, ok := s.staleCities(ctx, key, err); ok {
			return CitiesResult{Success: true, Cities: stale}, nil
		}
		s.logger.ErrorContext(ctx, "city search failed", "query", query, "region", region, "error", err)
		return CitiesResult{Success: false, Cities: []CityOption{}, Message: err.Error()}, nil
	}

	cities := make([]CityOption, 0, len(found))
	for _, c := range found {
		if c.Description == "" {
			continue
		}
		cities = append(cities, CityOption{Name: c.Description, Ref: c.Ref, Area: c.AreaDescription})
	}

	if region != "" && areaRef == "" {
		cities = filterByArea(cities, region)
	}

	s.cities.Set(key, cities)
	return CitiesResult{Success: true, Cities: cities}, nil
}

func (s *Service) staleCities(ctx context.Context, key string, err error) ([]CityOption, bool) {
	if !errors.Is(err, ErrRateLimited) {
		return nil, false
	}
	stale, ok := s.cities.Peek(key)
	if ok {
		s.metrics.RecordCacheLookup(ctx, "cities", "stale")
		telemetry.AddSpanEvent(ctx, "geo.stale_served", attribute.String("cache.key", key))
		s.logger.WarnContext(ctx, "serving stale cities after rate limit", "key", key)
	}
	return stale, ok
}

// SearchWarehouses returns ErrLocationRequired for an empty location; every
// other failure is reported inside the result.
func (s *Service) SearchWarehouses(ctx context.Context, location string) (WarehousesResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return WarehousesResult{}, ErrLocationRequired
	}
	key := "warehouses:" + fold(location)

	if cached, ok := s.warehouses.Get(key); ok {
		s.metrics.RecordCacheLookup(ctx, "warehouses", "hit")
		return WarehousesResult{Success: true, Warehouses: cached}, nil
	}
	s.metrics.RecordCacheLookup(ctx, "warehouses", "miss")

	cityRef := s.findLocationRef(ctx, location)
	found, err := s.lookup.Warehouses(ctx, WarehouseQuery{CityRef: cityRef, CityName: location, Limit: warehouseLimit})
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			if stale, ok := s.warehouses.Peek(key); ok {
				s.metrics.RecordCacheLookup(ctx, "warehouses", "stale")
				telemetry.AddSpanEvent(ctx, "geo.stale_served", attribute.String("cache.key", key))
				s.logger.WarnContext(ctx, "serving stale warehouses after rate limit", "key", key)
				return WarehousesResult{Success: true, Warehouses: stale}, nil
			}
		}
		s.logger.ErrorContext(ctx, "warehouse search failed", "location", location, "error", err)
		return WarehousesResult{Success: false, Warehouses: []WarehouseOption{}, Message: err.Error()}, nil
	}

	warehouses := make([]WarehouseOption, 0, len(found))
	for _, w := range found {
		address := w.ShortAddress
		if address == "" {
			address = w.Description
		}
		if w.Number == "" || address == "" {
			continue
		}
		warehouses = append(warehouses, WarehouseOption{Number: w.Number, Address: address, Description: w.Description})
	}

	s.warehouses.Set(key, warehouses)
	return WarehousesResult{Success: true, Warehouses: warehouses}, nil
}

// findLocationRef resolves the first matching city; lookup failures leave
// the warehouse search to fall back on the city name.
func (s *Service) findLocationRef(ctx context.Context, location string) string {
	cities, err := s.lookup.FindCities(ctx, location, "", cityRefLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "city reference lookup failed", "location", location, "error", err)
		return ""
	}
	if len(cities) == 0 {
		return ""
	}
	return cities[0].Ref
}

func (s *Service) findAreaRef(ctx context.Context, region string) string {
	areas, ok := s.areas.Get(areasCacheKey)
	if ok {
		s.metrics.RecordCacheLookup(ctx, "areas", "hit")
	} else {
		s.metrics.RecordCacheLookup(ctx, "areas", "miss")
		fetched, err := s.lookup.Areas(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "area lookup failed", "region", region, "error", err)
			return ""
		}
		areas = fetched
		s.areas.Set(areasCacheKey, areas)
	}

	target := fold(region)
	for _, a := range areas {
		name := fold(a.Description)
		if name == "" {
			continue
		}
		if strings.Contains(name, target) || strings.Contains(target, name) {
			return a.Ref
		}
	}
	return ""
}

// Sweep drops entries past their stale retention.
func (s *Service) Sweep() int {
	return s.cities.Sweep() + s.warehouses.Sweep() + s.areas.Sweep()
}

// Run sweeps the caches every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.DebugContext(ctx, "geo cache swept", "removed", removed)
			}
		}
	}
}

func filterByArea(cities []CityOption, region string) []CityOption {
	target := fold(region)
	filtered := make([]CityOption, 0, len(cities))
	for _, c := range cities {
		area := fold(c.Area)
		if strings.Contains(area, target) || strings.Contains(target, area) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// fold lower-cases with Ukrainian rules. A Caser is stateful, so each call
// builds its own.
func fold(s string) string {
	return cases.Lower(language.Ukrainian).String(strings.TrimSpace(s))
}
