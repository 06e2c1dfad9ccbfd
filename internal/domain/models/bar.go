package models

import "time"

// Bar is a single OHLCV record. Bars are immutable once created and
// ordered ascending by Time within a series.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// SeriesMeta describes where a series came from.
type SeriesMeta struct {
	Source    string
	Exchange  string
	FetchedAt time.Time
	BarCount  int
}

// TimeframeSeries is the bar history for one (symbol, timeframe) pair.
// The cache owns the canonical instance; consumers always receive a copy.
type TimeframeSeries struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar
	Meta      SeriesMeta
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (s *TimeframeSeries) Clone() *TimeframeSeries {
	if s == nil {
		return nil
	}
	out := *s
	out.Bars = make([]Bar, len(s.Bars))
	copy(out.Bars, s.Bars)
	return &out
}

// Closes extracts the close series.
func (s *TimeframeSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series.
func (s *TimeframeSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series.
func (s *TimeframeSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// FetchResult is what a bar source returns for one request.
type FetchResult struct {
	Bars     []Bar
	Source   string
	Exchange string
}

// BarFragment is a real-time partial update pushed by the streaming
// collaborator. Fragments merge into the cached series by timestamp.
type BarFragment struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar
}
