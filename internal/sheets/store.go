package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/haulpoint/shopbot-go/internal/errors"
	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
)

// ColumnCount is the width of the shop schema.
const ColumnCount = 12

var header = []string{
	"Created At",
	"Shop Name",
	"Address",
	"City",
	"State",
	"Phone",
	"Contact Person",
	"Staff",
	"Services",
	"Notes",
	"Latitude",
	"Longitude",
}

// Header returns a copy of the canonical header row.
func Header() []string {
	h := make([]string, len(header))
	copy(h, header)
	return h
}

// ValuesAPI is the slice of the sheets client the store needs.
type ValuesAPI interface {
	GetValues(ctx context.Context, a1Range string) ([][]string, error)
	AppendRow(ctx context.Context, a1Range string, row []string) error
}

// ShopStore enforces the shop schema over one tab of a spreadsheet: header
// verification, row parsing, and a read cache invalidated on every append.
type ShopStore struct {
	api      ValuesAPI
	tab      string
	cache    kv.Store
	cacheTTL time.Duration

	mu             sync.Mutex
	headerVerified bool
}

func NewShopStore(api ValuesAPI, tab string, cache kv.Store, cacheTTL time.Duration) *ShopStore {
	return &ShopStore{
		api:      api,
		tab:      tab,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (s *ShopStore) rowsRange() string   { return fmt.Sprintf("%s!A:L", s.tab) }
func (s *ShopStore) headerRange() string { return fmt.Sprintf("%s!A1:L1", s.tab) }
func (s *ShopStore) appendRange() string { return fmt.Sprintf("%s!A1", s.tab) }

func rowsCacheKey() string { return kv.Key("sheets", "rows") }

// EnsureHeader verifies the first row matches the schema, writing it to an
// empty tab. Any other content in row one is a hard error; nothing repairs a
// drifted sheet automatically.
func (s *ShopStore) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.headerVerified {
		return nil
	}

	rows, err := s.api.GetValues(ctx, s.headerRange())
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}

	if len(rows) == 0 || allBlank(rows[0]) {
		if err := s.api.AppendRow(ctx, s.appendRange(), Header()); err != nil {
			return fmt.Errorf("write header row: %w", err)
		}
		s.headerVerified = true
		return nil
	}

	if !headerMatches(rows[0]) {
		return apperrors.SchemaMismatch("sheet header does not match the shop schema").
			WithDetails(map[string]any{"expected": Header(), "got": rows[0]})
	}

	s.headerVerified = true
	return nil
}

// ReadAll returns every shop row, served from cache when fresh.
func (s *ShopStore) ReadAll(ctx context.Context) ([]model.ShopRecord, error) {
	if data, err := s.cache.Get(ctx, rowsCacheKey()); err != nil {
		log.Warn().Err(err).Msg("row cache read failed")
	} else if data != nil {
		var records []model.ShopRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
	}

	if err := s.EnsureHeader(ctx); err != nil {
		return nil, err
	}

	rows, err := s.api.GetValues(ctx, s.rowsRange())
	if err != nil {
		return nil, fmt.Errorf("read shop rows: %w", err)
	}

	records := make([]model.ShopRecord, 0, len(rows))
	for _, row := range rows {
		if rec, ok := recordFromRow(row); ok {
			records = append(records, rec)
		}
	}

	if data, err := json.Marshal(records); err == nil {
		if err := s.cache.Set(ctx, rowsCacheKey(), data, s.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("row cache write failed")
		}
	}

	return records, nil
}

// Append adds one shop row and drops the read cache so the next ReadAll sees
// the write.
func (s *ShopStore) Append(ctx context.Context, row []string) error {
	if len(row) != ColumnCount {
		return apperrors.ValidationError(
			fmt.Sprintf("row must have exactly %d fields, got %d", ColumnCount, len(row)))
	}

	if err := s.EnsureHeader(ctx); err != nil {
		return err
	}

	if err := s.api.AppendRow(ctx, s.appendRange(), row); err != nil {
		return fmt.Errorf("append shop row: %w", err)
	}

	if err := s.cache.Delete(ctx, rowsCacheKey()); err != nil {
		log.Warn().Err(err).Msg("row cache invalidation failed")
	}

	return nil
}

// RowFromRecord serializes a record into schema order. Missing coordinates
// become empty cells.
func RowFromRecord(rec model.ShopRecord) []string {
	lat, lng := "", ""
	if rec.Coords != nil {
		lat = strconv.FormatFloat(rec.Coords.Lat, 'f', -1, 64)
		lng = strconv.FormatFloat(rec.Coords.Lng, 'f', -1, 64)
	}
	return []string{
		rec.CreatedAt,
		rec.Name,
		rec.Address,
		rec.City,
		rec.State,
		rec.Phone,
		rec.Contact,
		string(rec.Staff),
		rec.Services,
		rec.Notes,
		lat,
		lng,
	}
}

// recordFromRow parses one sheet row. Blank rows and a stray header sentinel
// are skipped; unparseable coordinate cells leave Coords nil rather than
// failing the row.
func recordFromRow(row []string) (model.ShopRecord, bool) {
	padded := make([]string, ColumnCount)
	copy(padded, row)

	if allBlank(padded) {
		return model.ShopRecord{}, false
	}
	if padded[0] == header[0] && padded[1] == header[1] {
		return model.ShopRecord{}, false
	}

	rec := model.ShopRecord{
		CreatedAt: padded[0],
		Name:      padded[1],
		Address:   padded[2],
		City:      padded[3],
		State:     padded[4],
		Phone:     padded[5],
		Contact:   padded[6],
		Staff:     model.StaffType(padded[7]),
		Services:  padded[8],
		Notes:     padded[9],
	}
	if lat, lng, ok := parseCoords(padded[10], padded[11]); ok {
		rec.Coords = &model.Coordinates{Lat: lat, Lng: lng}
	}
	return rec, true
}

func parseCoords(latCell, lngCell string) (float64, float64, bool) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(latCell), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(lngCell), 64)
	if latErr != nil || lngErr != nil {
		return 0, 0, false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, false
	}
	return lat, lng, true
}

func headerMatches(row []string) bool {
	if len(row) != len(header) {
		return false
	}
	for i, want := range header {
		if row[i] != want {
			return false
		}
	}
	return true
}

func allBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
