package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetrend/internal/config"
)

// monthlySeries builds a series of consecutive months starting at 2024-01.
func monthlySeries(counts ...int) []MonthlyCount {
	out := make([]MonthlyCount, len(counts))
	year, month := 2024, 1
	for i, c := range counts {
		out[i] = MonthlyCount{YearMonth: fmt.Sprintf("%04d-%02d", year, month), Count: c}
		month++
		if month > 12 {
			month, year = 1, year+1
		}
	}
	return out
}

func TestEnsureMonthlyIndex(t *testing.T) {
	series := []MonthlyCount{
		{YearMonth: "2024-03", Count: 4},
		{YearMonth: "2024-01", Count: 2},
		{YearMonth: "2024-01", Count: 3}, // duplicate month sums
	}

	indexed := EnsureMonthlyIndex(series)
	require.Equal(t, []MonthlyCount{
		{YearMonth: "2024-01", Count: 5},
		{YearMonth: "2024-02", Count: 0},
		{YearMonth: "2024-03", Count: 4},
	}, indexed)
}

func TestEnsureMonthlyIndex_YearBoundary(t *testing.T) {
	indexed := EnsureMonthlyIndex([]MonthlyCount{
		{YearMonth: "2023-12", Count: 1},
		{YearMonth: "2024-02", Count: 1},
	})

	require.Len(t, indexed, 3)
	assert.Equal(t, "2024-01", indexed[1].YearMonth)
	assert.Equal(t, 0, indexed[1].Count)
}

func TestEnsureMonthlyIndex_Empty(t *testing.T) {
	indexed := EnsureMonthlyIndex(nil)
	require.NotNil(t, indexed)
	assert.Empty(t, indexed)
}

func TestRollingZScore_SingleSpike(t *testing.T) {
	series := monthlySeries(10, 10, 10, 10, 10, 100, 10, 10, 10, 10, 10, 10)

	points := RollingZScore(series, 6, 2.0)
	require.Len(t, points, 12)

	for i, p := range points {
		if i == 5 {
			assert.True(t, p.Spike, "month %s should be flagged", p.YearMonth)
			assert.Greater(t, p.Z, 2.0)
		} else {
			assert.False(t, p.Spike, "month %s should not be flagged", p.YearMonth)
		}
	}
}

func TestRollingZScore_ConstantSeries(t *testing.T) {
	series := monthlySeries(7, 7, 7, 7, 7, 7, 7, 7)

	points := RollingZScore(series, 6, 2.0)
	require.Len(t, points, 8)
	for _, p := range points {
		assert.Zero(t, p.Z)
		assert.False(t, p.Spike)
	}
}

func TestRollingZScore_ShortSeries(t *testing.T) {
	points := RollingZScore(monthlySeries(1, 2, 3), 6, 2.0)
	require.NotNil(t, points)
	assert.Empty(t, points)
}

func TestSeasonalSpikes_ShortSeries(t *testing.T) {
	// Two full periods are required; 12 months at period 12 is too short.
	points := SeasonalSpikes(monthlySeries(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12), 12, 2.5)
	assert.Empty(t, points)
}

func TestSeasonalSpikes_FlagsOffSeasonSpike(t *testing.T) {
	// Three years of a repeating seasonal pattern with one outlier month.
	counts := make([]int, 0, 36)
	pattern := []int{10, 12, 14, 16, 18, 20, 20, 18, 16, 14, 12, 10}
	for y := 0; y < 3; y++ {
		counts = append(counts, pattern...)
	}
	counts[25] = 120 // second month of year three

	points := SeasonalSpikes(monthlySeries(counts...), 12, 2.5)
	require.Len(t, points, 36)

	spikes := SpikeMonths(points)
	require.Len(t, spikes, 1)
	assert.Equal(t, points[25].YearMonth, spikes[0])
}

func TestDetect_SeasonalFallsBackToRolling(t *testing.T) {
	cfg := config.Default().Anomaly
	series := monthlySeries(10, 10, 10, 10, 10, 100, 10, 10, 10, 10, 10, 10)

	points, used := Detect(series, MethodSeasonal, cfg)
	assert.Equal(t, MethodRollingZ, used)

	direct := RollingZScore(series, cfg.RollingWindow, cfg.RollingThreshold)
	assert.Equal(t, direct, points)
}

func TestDetect_DefaultsToRolling(t *testing.T) {
	cfg := config.Default().Anomaly
	points, used := Detect(monthlySeries(1, 2, 3, 4, 5, 6, 7), MethodRollingZ, cfg)
	assert.Equal(t, MethodRollingZ, used)
	assert.Len(t, points, 7)
}

func TestDetect_UnknownMethodTriesSeasonal(t *testing.T) {
	cfg := config.Default().Anomaly

	// Long enough for the seasonal detector, which any unknown name maps to.
	long := monthlySeries(make([]int, 30)...)
	_, used := Detect(long, "seasonal", cfg)
	assert.Equal(t, MethodSeasonal, used)

	// Too short: degrades to the rolling detector.
	short := monthlySeries(1, 2, 3, 4, 5, 6, 7)
	_, used = Detect(short, "something_else", cfg)
	assert.Equal(t, MethodRollingZ, used)
}

func TestRankSpikes(t *testing.T) {
	points := []ScorePoint{
		{YearMonth: "2024-01", Count: 50, Z: 2.1, Spike: true},
		{YearMonth: "2024-02", Count: 10, Z: 0.2, Spike: false},
		{YearMonth: "2024-03", Count: 90, Z: 3.5, Spike: true},
		{YearMonth: "2024-04", Count: 70, Z: 2.8, Spike: true},
		{YearMonth: "2024-05", Count: 60, Z: 2.4, Spike: true},
	}

	ranked := RankSpikes(points, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, RankedSpike{Rank: 1, Date: "2024-03-01", Count: 90, Z: 3.5}, ranked[0])
	assert.Equal(t, RankedSpike{Rank: 2, Date: "2024-04-01", Count: 70, Z: 2.8}, ranked[1])
	assert.Equal(t, RankedSpike{Rank: 3, Date: "2024-05-01", Count: 60, Z: 2.4}, ranked[2])
}

func TestRankSpikes_NoSpikes(t *testing.T) {
	ranked := RankSpikes([]ScorePoint{{YearMonth: "2024-01", Z: 0.5}}, 3)
	require.NotNil(t, ranked)
	assert.Empty(t, ranked)
}
