package condition

import (
	"testing"
	"time"

	"TrendGate/internal/domain/models"
)

func TestGradeVolatilityLevels(t *testing.T) {
	calm := make([]float64, 60)
	for i := range calm {
		calm[i] = 100 + float64(i)*0.01
	}
	if lvl := gradeVolatility(calm); lvl.Level != "normal" && lvl.Level != "low" {
		t.Fatalf("calm series graded %q", lvl.Level)
	}

	// Flat history with a violent final stretch.
	spiky := make([]float64, 60)
	for i := range spiky {
		spiky[i] = 100
	}
	for i := 50; i < 60; i++ {
		if i%2 == 0 {
			spiky[i] = 110
		} else {
			spiky[i] = 90
		}
	}
	if lvl := gradeVolatility(spiky); lvl.Level != "high" {
		t.Fatalf("spiky series graded %q, want high", lvl.Level)
	}
}

func TestGradeVolumeLevels(t *testing.T) {
	mk := func(vols []int64) []models.Bar {
		bars := make([]models.Bar, len(vols))
		for i, v := range vols {
			bars[i] = models.Bar{Close: 100, Volume: v}
		}
		return bars
	}

	steady := make([]int64, 40)
	for i := range steady {
		steady[i] = 1000
	}
	if lvl := gradeVolume(mk(steady)); lvl.Level != "normal" {
		t.Fatalf("steady volume graded %q, want normal", lvl.Level)
	}

	surge := append([]int64(nil), steady...)
	for i := len(surge) - 5; i < len(surge); i++ {
		surge[i] = 5000
	}
	if lvl := gradeVolume(mk(surge)); lvl.Level != "high" {
		t.Fatalf("surging volume graded %q, want high", lvl.Level)
	}

	dry := append([]int64(nil), steady...)
	for i := len(dry) - 5; i < len(dry); i++ {
		dry[i] = 100
	}
	if lvl := gradeVolume(mk(dry)); lvl.Level != "low" {
		t.Fatalf("drying volume graded %q, want low", lvl.Level)
	}
}

func TestMarketOpenSchedule(t *testing.T) {
	p := NewProvider(nil, models.TF1h, nil)

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	cases := []struct {
		at   time.Time
		open bool
	}{
		{time.Date(2026, 8, 26, 10, 30, 0, 0, ny), true},  // Wednesday mid-session
		{time.Date(2026, 8, 26, 9, 29, 0, 0, ny), false},  // before the bell
		{time.Date(2026, 8, 26, 16, 0, 0, 0, ny), false},  // at the close
		{time.Date(2026, 8, 29, 11, 0, 0, 0, ny), false},  // Saturday
	}
	for _, c := range cases {
		if got := p.marketOpen(c.at); got != c.open {
			t.Fatalf("marketOpen(%s) = %v, want %v", c.at, got, c.open)
		}
	}
}
