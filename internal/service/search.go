package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/geo"
	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
)

const (
	// SearchRadiusMiles bounds proximity results; the boundary is inclusive.
	SearchRadiusMiles = 100.0

	// PageSize is how many results render per page.
	PageSize = 10

	// DefaultResultTTL keeps a result set alive for pagination.
	DefaultResultTTL = 15 * time.Minute
)

var cityStateRe = regexp.MustCompile(`^\s*(.+?)\s*,\s*([A-Za-z]{2})\s*$`)

// ParseCityState matches "City, ST" queries. The state code is uppercased;
// anything that doesn't fit the shape is rejected.
func ParseCityState(text string) (city, state string, ok bool) {
	m := cityStateRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ToUpper(m[2]), true
}

// SearchService runs proximity searches and pages through cached result sets.
type SearchService struct {
	states    *StateStore
	shops     ShopReader
	geocoder  Geocoder
	cache     kv.Store
	journal   *JournalService
	resultTTL time.Duration
}

func NewSearchService(states *StateStore, shops ShopReader, geocoder Geocoder, cache kv.Store, journal *JournalService, resultTTL time.Duration) *SearchService {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &SearchService{
		states:    states,
		shops:     shops,
		geocoder:  geocoder,
		cache:     cache,
		journal:   journal,
		resultTTL: resultTTL,
	}
}

func resultsKey(key string) string {
	return kv.Key("results", key)
}

// Start begins the search flow, replacing whatever flow was active.
func (s *SearchService) Start(ctx context.Context, key string) (model.Reply, error) {
	if err := s.states.Put(ctx, key, model.NewSearchState()); err != nil {
		return model.Reply{}, err
	}
	return searchPromptReply(), nil
}

// HandleQuery consumes a typed message while the search flow is waiting for
// one. A query that doesn't parse re-prompts and keeps the flow alive.
func (s *SearchService) HandleQuery(ctx context.Context, key string, text string) (model.Reply, error) {
	city, state, ok := ParseCityState(text)
	if !ok {
		return model.Reply{
			Text:    "I couldn't read that. Send City, ST (for example Dallas, TX) or share your location.",
			Buttons: cancelRow(),
		}, nil
	}
	return s.runCityState(ctx, key, city, state)
}

// TryQuery attempts an inline search for a message that arrived with no flow
// active. ok reports whether the text looked like a search query at all.
func (s *SearchService) TryQuery(ctx context.Context, key string, text string) (reply model.Reply, ok bool, err error) {
	city, state, parsed := ParseCityState(text)
	if !parsed {
		return model.Reply{}, false, nil
	}
	reply, err = s.runCityState(ctx, key, city, state)
	return reply, true, err
}

func (s *SearchService) runCityState(ctx context.Context, key, city, state string) (model.Reply, error) {
	label := fmt.Sprintf("%s, %s", city, state)

	loc, err := s.geocoder.Lookup(ctx, label)
	if err != nil {
		log.Error().Err(err).Str("conversation", key).Str("query", label).Msg("geocode failed during search")
		return model.Reply{Text: genericFailureText, Buttons: mainMenuButtons()}, nil
	}
	if loc == nil {
		return model.Reply{
			Text:    fmt.Sprintf("I couldn't find %s on the map. Double-check the spelling and try again.", label),
			Buttons: cancelRow(),
		}, nil
	}

	return s.Run(ctx, key, loc.Coordinates, label)
}

// Run executes a proximity search around a center, caches the result set for
// pagination, and renders the first page. The search flow, if any, ends here.
func (s *SearchService) Run(ctx context.Context, key string, center model.Coordinates, label string) (model.Reply, error) {
	records, err := s.shops.ReadAll(ctx)
	if err != nil {
		log.Error().Err(err).Str("conversation", key).Msg("read shops failed during search")
		return model.Reply{Text: genericFailureText, Buttons: mainMenuButtons()}, nil
	}

	results := make([]model.SearchResult, 0)
	for _, rec := range records {
		if rec.Coords == nil {
			continue
		}
		distance := geo.Miles(center, *rec.Coords)
		if !geo.WithinRadius(distance, SearchRadiusMiles) {
			continue
		}
		results = append(results, model.SearchResult{Record: rec, DistanceMiles: distance})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceMiles < results[j].DistanceMiles
	})

	if err := s.states.Clear(ctx, key); err != nil {
		log.Warn().Err(err).Str("conversation", key).Msg("clear state after search failed")
	}

	if len(results) == 0 {
		return model.Reply{
			Text:    fmt.Sprintf("No shops within %.0f miles of %s. Try another city.", SearchRadiusMiles, label),
			Buttons: mainMenuButtons(),
		}, nil
	}

	set := model.SearchResultSet{Query: label, Results: results}
	if data, err := json.Marshal(set); err == nil {
		if err := s.cache.Set(ctx, resultsKey(key), data, s.resultTTL); err != nil {
			log.Warn().Err(err).Str("conversation", key).Msg("result cache write failed")
		}
	}

	s.journal.Record(ctx, model.JournalSearchRun, key, map[string]any{
		"query":   label,
		"results": len(results),
	})

	return renderResultsPage(set, 0), nil
}

// Page re-renders a page of the conversation's cached result set. An expired
// set asks the participant to search again.
func (s *SearchService) Page(ctx context.Context, key string, page int) (model.Reply, error) {
	data, err := s.cache.Get(ctx, resultsKey(key))
	if err != nil {
		return model.Reply{}, fmt.Errorf("get cached results: %w", err)
	}
	if data == nil {
		return model.Reply{
			Text:    "Those results have expired. Run the search again.",
			Buttons: mainMenuButtons(),
		}, nil
	}

	var set model.SearchResultSet
	if err := json.Unmarshal(data, &set); err != nil {
		log.Warn().Err(err).Str("conversation", key).Msg("dropping undecodable result set")
		_ = s.cache.Delete(ctx, resultsKey(key))
		return model.Reply{
			Text:    "Those results have expired. Run the search again.",
			Buttons: mainMenuButtons(),
		}, nil
	}

	return renderResultsPage(set, page), nil
}
