package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type AssetPrice struct {
	Symbol string
	Price  decimal.Decimal
	Date   time.Time
}

type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is an ordered price history for one instrument.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

func NewPriceSeries(symbol string, prices []AssetPrice) PriceSeries {
	points := make([]PricePoint, 0, len(prices))
	for _, p := range prices {
		points = append(points, PricePoint{
			Date:  p.Date,
			Price: p.Price.InexactFloat64(),
		})
	}
	s := PriceSeries{Symbol: symbol, Points: points}
	s.Sort()
	return s
}

func (s PriceSeries) Sort() {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Date.Before(s.Points[j].Date)
	})
}

func (s PriceSeries) Len() int {
	return len(s.Points)
}

func (s PriceSeries) First() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[0], true
}

func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// PriceOn returns the most recent price on or before t. Points must be
// sorted.
func (s PriceSeries) PriceOn(t time.Time) (float64, bool) {
	i := sort.Search(len(s.Points), func(i int) bool {
		return s.Points[i].Date.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return s.Points[i-1].Price, true
}

// Covers reports whether the series has a price at or before start and
// a price at or after end.
func (s PriceSeries) Covers(start, end time.Time) bool {
	first, ok := s.First()
	if !ok {
		return false
	}
	last, _ := s.Last()
	return !first.Date.After(start) && !last.Date.Before(end)
}

// Returns is the list of point-to-point simple returns. Non-positive
// prices are skipped.
func (s PriceSeries) Returns() []float64 {
	out := []float64{}
	for i := 1; i < len(s.Points); i++ {
		prev := s.Points[i-1].Price
		if prev <= 0 {
			continue
		}
		out = append(out, s.Points[i].Price/prev-1)
	}
	return out
}
