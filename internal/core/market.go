package core

import (
	"fmt"
	"sort"

	"exchange-core/internal/precise"
)

type MinMax struct {
	Min precise.Decimal
	Max precise.Decimal
}

type Limits struct {
	Amount MinMax
	Price  MinMax
	Cost   MinMax
}

// Precision holds granularities as tick sizes, e.g. 0.01 for two decimals.
type Precision struct {
	Amount precise.Decimal
	Price  precise.Decimal
}

// FeeTier is the rate that applies once traded volume reaches Threshold.
type FeeTier struct {
	Threshold precise.Decimal
	Rate      precise.Decimal
}

type FeeSchedule struct {
	Maker      precise.Decimal
	Taker      precise.Decimal
	Percentage bool
	TierBased  bool
	MakerTiers []FeeTier
	TakerTiers []FeeTier
}

type Market struct {
	ID        string
	Symbol    string
	Base      string
	Quote     string
	BaseID    string
	QuoteID   string
	Active    bool
	Precision Precision
	Limits    Limits
	Fees      FeeSchedule
	Info      map[string]any
}

// Validate checks the market invariants and sorts fee tiers in place. Maker and
// taker rates default to the lowest tier when the venue did not report them.
func (m *Market) Validate() error {
	if m.Base == "" || m.Quote == "" {
		return fmt.Errorf("%w: market %q has no base or quote", ErrParse, m.ID)
	}
	if m.Base == m.Quote {
		return fmt.Errorf("%w: market %q base equals quote %q", ErrParse, m.ID, m.Base)
	}
	sortTiers(m.Fees.MakerTiers)
	sortTiers(m.Fees.TakerTiers)
	if len(m.Fees.MakerTiers) > 0 || len(m.Fees.TakerTiers) > 0 {
		m.Fees.TierBased = true
	}
	if !m.Fees.Maker.Known() && len(m.Fees.MakerTiers) > 0 {
		m.Fees.Maker = m.Fees.MakerTiers[0].Rate
	}
	if !m.Fees.Taker.Known() && len(m.Fees.TakerTiers) > 0 {
		m.Fees.Taker = m.Fees.TakerTiers[0].Rate
	}
	return nil
}

func sortTiers(tiers []FeeTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Threshold.Cmp(tiers[j].Threshold) < 0
	})
}

// MarketSet is an immutable snapshot of one markets refresh.
type MarketSet struct {
	bySymbol map[string]Market
	byID     map[string]Market
	symbols  []string
}

// NewMarketSet validates and indexes markets. A later duplicate symbol replaces
// an earlier one.
func NewMarketSet(markets []Market) (*MarketSet, error) {
	set := &MarketSet{
		bySymbol: make(map[string]Market, len(markets)),
		byID:     make(map[string]Market, len(markets)),
	}
	for _, m := range markets {
		m.Fees.MakerTiers = append([]FeeTier(nil), m.Fees.MakerTiers...)
		m.Fees.TakerTiers = append([]FeeTier(nil), m.Fees.TakerTiers...)
		if err := m.Validate(); err != nil {
			return nil, err
		}
		set.bySymbol[m.Symbol] = m
		set.byID[m.ID] = m
	}
	set.symbols = make([]string, 0, len(set.bySymbol))
	for symbol := range set.bySymbol {
		set.symbols = append(set.symbols, symbol)
	}
	sort.Strings(set.symbols)
	return set, nil
}

func (s *MarketSet) BySymbol(symbol string) (Market, bool) {
	if s == nil {
		return Market{}, false
	}
	m, ok := s.bySymbol[symbol]
	return m, ok
}

func (s *MarketSet) ByID(id string) (Market, bool) {
	if s == nil {
		return Market{}, false
	}
	m, ok := s.byID[id]
	return m, ok
}

// Symbols returns the sorted symbol list.
func (s *MarketSet) Symbols() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.symbols...)
}

func (s *MarketSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bySymbol)
}
