package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"aetrend/internal/config"
)

// Detection method names as they appear in summaries and reports.
const (
	MethodRollingZ = "rolling_z"
	MethodSeasonal = "stl"
)

// ScorePoint is one month of a scored series.
type ScorePoint struct {
	YearMonth string
	Count     float64
	Z         float64
	Spike     bool
}

// RankedSpike is one entry of a ranked spike list. Rank is 1-based and
// Date is the ISO first day of the spike month.
type RankedSpike struct {
	Rank  int
	Date  string
	Count float64
	Z     float64
}

// EnsureMonthlyIndex makes a series safe for windowed detection: duplicate
// months are summed, the series is sorted ascending, and any gap between
// the first and last month is filled with a zero count.
func EnsureMonthlyIndex(series []MonthlyCount) []MonthlyCount {
	if len(series) == 0 {
		return []MonthlyCount{}
	}

	counts := make(map[string]int, len(series))
	for _, p := range series {
		counts[p.YearMonth] += p.Count
	}

	months := make([]string, 0, len(counts))
	for ym := range counts {
		months = append(months, ym)
	}
	sort.Strings(months)

	first, errFirst := time.Parse("2006-01", months[0])
	last, errLast := time.Parse("2006-01", months[len(months)-1])
	if errFirst != nil || errLast != nil {
		// Unparseable labels: fall back to the sorted de-duplicated series.
		out := make([]MonthlyCount, 0, len(months))
		for _, ym := range months {
			out = append(out, MonthlyCount{YearMonth: ym, Count: counts[ym]})
		}
		return out
	}

	out := []MonthlyCount{}
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		ym := m.Format("2006-01")
		out = append(out, MonthlyCount{YearMonth: ym, Count: counts[ym]})
	}
	return out
}

// RollingZScore scores each point against the mean and sample standard
// deviation of the trailing window ending at that point. A window with
// fewer than two points, or with zero variance, scores zero. Series
// shorter than the window yield an empty result.
func RollingZScore(series []MonthlyCount, window int, threshold float64) []ScorePoint {
	if len(series) < window {
		return []ScorePoint{}
	}

	values := seriesValues(series)
	out := make([]ScorePoint, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := values[start : i+1]

		z := 0.0
		if len(win) >= 2 {
			mean, errMean := stats.Mean(win)
			std, errStd := stats.StandardDeviationSample(win)
			if errMean == nil && errStd == nil && std > 0 && !math.IsNaN(std) {
				z = (values[i] - mean) / std
			}
		}

		out[i] = ScorePoint{
			YearMonth: series[i].YearMonth,
			Count:     values[i],
			Z:         z,
			Spike:     math.Abs(z) > threshold,
		}
	}
	return out
}

// SeasonalSpikes scores residuals after removing trend and a repeating
// seasonal component of the given period. Series shorter than two full
// periods yield an empty result.
func SeasonalSpikes(series []MonthlyCount, period int, threshold float64) []ScorePoint {
	if period < 2 || len(series) < 2*period {
		return []ScorePoint{}
	}

	values := seriesValues(series)
	trend := centeredTrend(values, period)
	seasonal := seasonalComponent(values, trend, period)

	residuals := make([]float64, len(values))
	for i := range values {
		residuals[i] = values[i] - trend[i] - seasonal[i%period]
	}

	mean, std := stat.MeanStdDev(residuals, nil)
	out := make([]ScorePoint, len(series))
	for i := range series {
		z := 0.0
		if std > 0 && !math.IsNaN(std) {
			z = (residuals[i] - mean) / std
		}
		out[i] = ScorePoint{
			YearMonth: series[i].YearMonth,
			Count:     values[i],
			Z:         z,
			Spike:     math.Abs(z) > threshold,
		}
	}
	return out
}

// Detect runs the requested method with a guaranteed result. Any method
// name other than rolling_z is treated as the seasonal detector, and
// when that detector declines a too-short series the rolling detector
// runs instead. Returns the scored points plus the method actually used.
func Detect(series []MonthlyCount, method string, cfg config.AnomalyConfig) ([]ScorePoint, string) {
	if method != MethodRollingZ {
		points := SeasonalSpikes(series, cfg.SeasonalPeriod, cfg.SeasonalThreshold)
		if len(points) > 0 {
			return points, MethodSeasonal
		}
	}
	return RollingZScore(series, cfg.RollingWindow, cfg.RollingThreshold), MethodRollingZ
}

// RankSpikes extracts the flagged points ordered by descending absolute
// score and keeps the top k, assigning 1-based ranks.
func RankSpikes(points []ScorePoint, k int) []RankedSpike {
	spikes := []ScorePoint{}
	for _, p := range points {
		if p.Spike {
			spikes = append(spikes, p)
		}
	}

	sort.Slice(spikes, func(i, j int) bool {
		ai, aj := math.Abs(spikes[i].Z), math.Abs(spikes[j].Z)
		if ai != aj {
			return ai > aj
		}
		return spikes[i].YearMonth < spikes[j].YearMonth
	})

	if k > 0 && len(spikes) > k {
		spikes = spikes[:k]
	}

	out := make([]RankedSpike, len(spikes))
	for i, s := range spikes {
		out[i] = RankedSpike{
			Rank:  i + 1,
			Date:  monthStartDate(s.YearMonth),
			Count: s.Count,
			Z:     s.Z,
		}
	}
	return out
}

// monthStartDate converts a YYYY-MM label to the ISO date of the first of
// that month. Labels that fail to parse pass through unchanged.
func monthStartDate(ym string) string {
	m, err := time.Parse("2006-01", ym)
	if err != nil {
		return ym
	}
	return m.Format("2006-01-02")
}

func seriesValues(series []MonthlyCount) []float64 {
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = float64(p.Count)
	}
	return values
}

// centeredTrend computes a centered moving average of the given period.
// Even periods use a 2x-period average with half weights on the end
// points. Edge positions without a full window take the nearest interior
// trend value.
func centeredTrend(values []float64, period int) []float64 {
	n := len(values)
	trend := make([]float64, n)
	half := period / 2

	firstDefined, lastDefined := -1, -1
	for i := half; i < n-half; i++ {
		var sum float64
		if period%2 == 0 {
			sum = 0.5*values[i-half] + 0.5*values[i+half]
			for j := i - half + 1; j <= i+half-1; j++ {
				sum += values[j]
			}
		} else {
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
		}
		trend[i] = sum / float64(period)
		if firstDefined < 0 {
			firstDefined = i
		}
		lastDefined = i
	}

	if firstDefined < 0 {
		return trend
	}
	for i := 0; i < firstDefined; i++ {
		trend[i] = trend[firstDefined]
	}
	for i := lastDefined + 1; i < n; i++ {
		trend[i] = trend[lastDefined]
	}
	return trend
}

// seasonalComponent averages the detrended values per phase and centers
// the result so the seasonal component sums to zero over one period.
func seasonalComponent(values, trend []float64, period int) []float64 {
	sums := make([]float64, period)
	counts := make([]int, period)
	for i := range values {
		sums[i%period] += values[i] - trend[i]
		counts[i%period]++
	}

	seasonal := make([]float64, period)
	var total float64
	for p := 0; p < period; p++ {
		if counts[p] > 0 {
			seasonal[p] = sums[p] / float64(counts[p])
		}
		total += seasonal[p]
	}

	offset := total / float64(period)
	for p := range seasonal {
		seasonal[p] -= offset
	}
	return seasonal
}
