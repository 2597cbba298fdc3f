package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/model"
)

const recentLimit = 5

// RecentService lists the latest additions to the directory.
type RecentService struct {
	shops ShopReader
}

func NewRecentService(shops ShopReader) *RecentService {
	return &RecentService{shops: shops}
}

func (s *RecentService) Recent(ctx context.Context) (model.Reply, error) {
	records, err := s.shops.ReadAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read shops failed for recent list")
		return model.Reply{Text: genericFailureText, Buttons: mainMenuButtons()}, nil
	}

	if len(records) == 0 {
		return model.Reply{
			Text:    "The directory is empty so far. Add the first shop!",
			Buttons: mainMenuButtons(),
		}, nil
	}

	sorted := make([]model.ShopRecord, len(records))
	copy(sorted, records)
	// CreatedAt is RFC3339, so lexical order is chronological.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})

	n := recentLimit
	if n > len(sorted) {
		n = len(sorted)
	}

	var b strings.Builder
	b.WriteString("Recently added shops:\n")
	for i, rec := range sorted[:n] {
		fmt.Fprintf(&b, "\n%d. %s\n%s, %s\n", i+1, rec.Name, rec.City, rec.State)
		if rec.Services != "" {
			fmt.Fprintf(&b, "Services: %s\n", rec.Services)
		}
		fmt.Fprintf(&b, "Phone: %s\n", rec.Phone)
	}

	return model.Reply{Text: b.String(), Buttons: mainMenuButtons()}, nil
}
