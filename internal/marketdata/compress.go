package marketdata

import (
	"math"
	"time"

	"TrendGate/internal/domain/models"
)

// Delta compression stores every bar after the first as rounded deltas
// against the previous bar's close. Round-trip is lossless to 4 decimal
// places, which is the resolution upstream quotes at.

type deltaBar struct {
	DT     int64 // seconds since previous bar
	DO     float64
	DH     float64
	DL     float64
	DC     float64
	Volume int64
}

type compressedSeries struct {
	First models.Bar
	Rest  []deltaBar
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func compressBars(bars []models.Bar) *compressedSeries {
	if len(bars) == 0 {
		return &compressedSeries{}
	}
	cs := &compressedSeries{
		First: bars[0],
		Rest:  make([]deltaBar, 0, len(bars)-1),
	}
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		cs.Rest = append(cs.Rest, deltaBar{
			DT:     int64(bars[i].Time.Sub(bars[i-1].Time) / time.Second),
			DO:     round4(bars[i].Open - prevClose),
			DH:     round4(bars[i].High - prevClose),
			DL:     round4(bars[i].Low - prevClose),
			DC:     round4(bars[i].Close - prevClose),
			Volume: bars[i].Volume,
		})
	}
	return cs
}

func (cs *compressedSeries) decompress() []models.Bar {
	if cs == nil || (cs.First == models.Bar{}) && len(cs.Rest) == 0 {
		return nil
	}
	out := make([]models.Bar, 0, len(cs.Rest)+1)
	out = append(out, cs.First)
	prev := cs.First
	for _, d := range cs.Rest {
		b := models.Bar{
			Time:   prev.Time.Add(time.Duration(d.DT) * time.Second),
			Open:   round4(prev.Close + d.DO),
			High:   round4(prev.Close + d.DH),
			Low:    round4(prev.Close + d.DL),
			Close:  round4(prev.Close + d.DC),
			Volume: d.Volume,
		}
		out = append(out, b)
		prev = b
	}
	return out
}

func (cs *compressedSeries) barCount() int {
	if cs == nil {
		return 0
	}
	if (cs.First == models.Bar{}) && len(cs.Rest) == 0 {
		return 0
	}
	return len(cs.Rest) + 1
}
