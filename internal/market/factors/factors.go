// Package factors computes the daily market factor rows of spec.md §4.9,
// grounded on
// features/market/application/usecases/compute_market_factors.py: rolling
// volatility/Sharpe/Sortino/VaR from daily returns, an EMA-based expected
// return, sentiment normalization (z-score, winsorized z-score, or
// min-max) optionally evidence-weighted by article count, and the
// composite p_alpha blend.
package factors

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// NormMethod selects the sentiment/expected-return normalization.
type NormMethod string

const (
	NormZScore NormMethod = "zscore"
	NormWinsor NormMethod = "winsor"
	NormMinMax NormMethod = "minmax"
)

// VarMethod selects the rolling VaR95 estimator.
type VarMethod string

const (
	VarParametric VarMethod = "param95"
	VarEmpirical  VarMethod = "emp95"
)

// SentimentWeightMode selects how the sentiment series is evidence-weighted.
type SentimentWeightMode string

const (
	SentimentWeightNone   SentimentWeightMode = "none"
	SentimentWeightCount  SentimentWeightMode = "count"
	SentimentWeightDomain SentimentWeightMode = "domain_weight"
)

// Config holds the Factor Engine's tunables, all defaulted the way
// ComputeMarketFactors.__init__ defaults them.
type Config struct {
	WindowVol         int
	WindowSent        int
	EMALen            int
	NormMethod        NormMethod
	WinsorAlpha       float64
	VarMethod         VarMethod
	SentimentWeight   SentimentWeightMode
	ArticleWeightBeta float64
	ArticleWeightCap  float64
}

// DefaultConfig mirrors the Python defaults exactly.
func DefaultConfig() Config {
	return Config{
		WindowVol:         30,
		WindowSent:        90,
		EMALen:            30,
		NormMethod:        NormZScore,
		WinsorAlpha:       0.05,
		VarMethod:         VarParametric,
		SentimentWeight:   SentimentWeightNone,
		ArticleWeightBeta: 0.5,
		ArticleWeightCap:  3.0,
	}
}

// Engine computes and optionally persists MarketFactorsDaily rows.
type Engine struct {
	Repo ports.FactorsRepository
	Cfg  Config
}

// NewEngine builds an Engine, applying DefaultConfig to any zero-valued
// fields in cfg.
func NewEngine(repo ports.FactorsRepository, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.WindowVol == 0 {
		cfg.WindowVol = def.WindowVol
	}
	if cfg.WindowSent == 0 {
		cfg.WindowSent = def.WindowSent
	}
	if cfg.EMALen == 0 {
		cfg.EMALen = def.EMALen
	}
	if cfg.NormMethod == "" {
		cfg.NormMethod = def.NormMethod
	}
	if cfg.WinsorAlpha == 0 {
		cfg.WinsorAlpha = def.WinsorAlpha
	}
	if cfg.VarMethod == "" {
		cfg.VarMethod = def.VarMethod
	}
	if cfg.SentimentWeight == "" {
		cfg.SentimentWeight = def.SentimentWeight
	}
	if cfg.ArticleWeightBeta == 0 {
		cfg.ArticleWeightBeta = def.ArticleWeightBeta
	}
	if cfg.ArticleWeightCap == 0 {
		cfg.ArticleWeightCap = def.ArticleWeightCap
	}
	return &Engine{Repo: repo, Cfg: cfg}
}

// Result is what Execute returns: the computed rows plus a processed count.
type Result struct {
	Rows          []domain.MarketFactorsDaily
	DaysProcessed int
}

// Execute computes factor rows for assetSymbol over [start, end] and, if
// persist is true, upserts each row through the repository.
func (e *Engine) Execute(ctx context.Context, assetSymbol string, start, end time.Time, alpha float64, persist bool) (Result, error) {
	returns, err := e.Repo.DailyReturns(ctx, assetSymbol, start, end)
	if err != nil {
		return Result{}, err
	}

	days := make([]time.Time, len(returns))
	retVals := make([]*float64, len(returns))
	for i, r := range returns {
		days[i] = r.Day
		retVals[i] = r.Return
	}

	vol30, sharpe30 := rollingVolSharpe(retVals, e.Cfg.WindowVol)
	sortino30 := rollingSortino(retVals, e.Cfg.WindowVol)
	var1d95 := rollingVaR95(retVals, e.Cfg.WindowVol, e.Cfg.VarMethod)
	expReturn := ema(retVals, e.Cfg.EMALen)

	sentimentMean, weights, err := e.loadSentimentSeries(ctx, assetSymbol, start, end, days)
	if err != nil {
		return Result{}, err
	}

	sentimentNorm := normalizeSeries(sentimentMean, e.Cfg.WindowSent, e.Cfg.NormMethod, e.Cfg.WinsorAlpha, weights, 2)
	expReturnNorm := normalizeSeries(expReturn, e.Cfg.WindowSent, NormZScore, e.Cfg.WinsorAlpha, nil, 2)

	pAlpha := blendPAlpha(expReturnNorm, sentimentNorm, alpha)

	rows := make([]domain.MarketFactorsDaily, len(days))
	for i, d := range days {
		rows[i] = domain.MarketFactorsDaily{
			AssetSymbol:   assetSymbol,
			Day:           d,
			Ret1d:         retVals[i],
			Vol30d:        vol30[i],
			Sharpe30d:     sharpe30[i],
			Sortino30d:    sortino30[i],
			Var1d95:       var1d95[i],
			ExpReturn30d:  expReturn[i],
			SentimentMean: sentimentMean[i],
			SentimentNorm: sentimentNorm[i],
			PAlpha:        pAlpha[i],
			Alpha:         alpha,
		}
	}

	if persist {
		for _, row := range rows {
			if err := e.Repo.UpsertFactors(ctx, row); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{Rows: rows, DaysProcessed: len(rows)}, nil
}

// loadSentimentSeries builds the per-day sentiment series and, for the
// weighted modes, the matching evidence-weight series, following
// ComputeMarketFactors.execute's branch on sentiment_weight.
func (e *Engine) loadSentimentSeries(ctx context.Context, assetSymbol string, start, end time.Time, days []time.Time) ([]*float64, []*float64, error) {
	switch e.Cfg.SentimentWeight {
	case SentimentWeightDomain:
		sentMap, err := e.Repo.DailySentimentWeighted(ctx, assetSymbol, start, end)
		if err != nil {
			sentMap, err = e.Repo.DailySentiment(ctx, assetSymbol, start, end)
			if err != nil {
				return nil, nil, err
			}
		}
		stats, err := e.Repo.DailySentimentStats(ctx, assetSymbol, start, end)
		if err != nil {
			stats = nil
		}
		sentiment := lookupSeries(sentMap, days)
		weights := buildArticleWeightsNormed(stats, days, e.Cfg.ArticleWeightBeta, e.Cfg.ArticleWeightCap)
		return sentiment, weights, nil

	case SentimentWeightCount:
		sentMap, err := e.Repo.DailySentiment(ctx, assetSymbol, start, end)
		if err != nil {
			return nil, nil, err
		}
		stats, err := e.Repo.DailySentimentStats(ctx, assetSymbol, start, end)
		if err != nil {
			stats = nil
		}
		sentiment := lookupSeries(sentMap, days)
		weights := buildArticleWeightsCounts(stats, days)
		return sentiment, weights, nil

	default:
		sentMap, err := e.Repo.DailySentiment(ctx, assetSymbol, start, end)
		if err != nil {
			return nil, nil, err
		}
		return lookupSeries(sentMap, days), nil, nil
	}
}

func lookupSeries(m map[time.Time]*float64, days []time.Time) []*float64 {
	out := make([]*float64, len(days))
	for i, d := range days {
		out[i] = m[d]
	}
	return out
}

// ema applies an exponential moving average with k = 2/(length+1),
// seeding on the first non-null value and carrying the previous EMA
// forward across nulls.
func ema(series []*float64, length int) []*float64 {
	k := 2.0 / (float64(length) + 1.0)
	out := make([]*float64, len(series))
	var cur *float64
	for i, v := range series {
		if v == nil {
			out[i] = cur
			continue
		}
		if cur == nil {
			val := *v
			cur = &val
		} else {
			val := *cur + k*(*v-*cur)
			cur = &val
		}
		out[i] = cur
	}
	return out
}

// winsorize clips values to their alpha/(1-alpha) order-statistic bounds.
func winsorize(values []float64, alpha float64) []float64 {
	if len(values) == 0 || alpha <= 0 {
		return append([]float64(nil), values...)
	}
	xs := append([]float64(nil), values...)
	sort.Float64s(xs)
	n := len(xs)
	loIdx := clampInt(int(alpha*float64(n-1)), 0, n-1)
	hiIdx := clampInt(int((1.0-alpha)*float64(n-1)), 0, n-1)
	lo, hi := xs[loIdx], xs[hiIdx]
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Min(hi, math.Max(lo, v))
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// weightedStats returns the weighted mean and weighted population stddev
// over values/weights pairs with positive weight, or (nil, nil) if no
// pair qualifies.
func weightedStats(values, weights []float64) (*float64, *float64) {
	var vs, ws []float64
	for i := range values {
		if weights[i] <= 0 {
			continue
		}
		vs = append(vs, values[i])
		ws = append(ws, weights[i])
	}
	if len(vs) == 0 {
		return nil, nil
	}
	wSum := 0.0
	for _, w := range ws {
		wSum += w
	}
	if wSum <= 0 {
		return nil, nil
	}
	mu := 0.0
	for i := range vs {
		mu += vs[i] * ws[i]
	}
	mu /= wSum
	variance := 0.0
	for i := range vs {
		d := vs[i] - mu
		variance += ws[i] * d * d
	}
	variance /= wSum
	sd := math.Sqrt(variance)
	return &mu, &sd
}

// rollingVolSharpe computes the trailing-window population stddev
// (vol_30d) and mean/stddev ratio (sharpe_30d) inline, as the original
// does directly in execute() rather than via a separate helper.
func rollingVolSharpe(rets []*float64, window int) ([]*float64, []*float64) {
	vol := make([]*float64, len(rets))
	sharpe := make([]*float64, len(rets))
	var buf []float64
	for i, r := range rets {
		if r != nil {
			buf = append(buf, *r)
		}
		if len(buf) > window {
			buf = buf[1:]
		}
		if len(buf) >= 2 {
			m := mean(buf)
			sd := pstdev(buf, m)
			if sd != 0 {
				v := sd
				vol[i] = &v
				s := m / sd
				sharpe[i] = &s
			}
		}
	}
	return vol, sharpe
}

// rollingSortino computes the trailing-window Sortino ratio using the
// downside-deviation denominator; it is null while the window has no
// negative return, matching the original's all-zero-downside guard.
func rollingSortino(rets []*float64, window int) []*float64 {
	out := make([]*float64, len(rets))
	var buf []float64
	for i, r := range rets {
		if r != nil {
			buf = append(buf, *r)
		}
		if len(buf) > window {
			buf = buf[1:]
		}
		if len(buf) >= 2 {
			m := mean(buf)
			sumSq := 0.0
			anyNeg := false
			for _, x := range buf {
				d := math.Min(0.0, x)
				if d != 0 {
					anyNeg = true
				}
				sumSq += d * d
			}
			if anyNeg {
				sdDown := math.Sqrt(sumSq / float64(len(buf)))
				if sdDown != 0 {
					v := m / sdDown
					out[i] = &v
				}
			}
		}
	}
	return out
}

// rollingVaR95 computes the trailing-window 95% VaR, either parametric
// (mu - 1.65*sd) or empirical (5th-percentile order statistic).
func rollingVaR95(rets []*float64, window int, method VarMethod) []*float64 {
	out := make([]*float64, len(rets))
	var buf []float64
	for i, r := range rets {
		if r != nil {
			buf = append(buf, *r)
		}
		if len(buf) > window {
			buf = buf[1:]
		}
		if len(buf) >= 2 {
			if method == VarEmpirical {
				xs := append([]float64(nil), buf...)
				sort.Float64s(xs)
				qIdx := clampInt(int(0.05*float64(len(xs)-1)), 0, len(xs)-1)
				v := xs[qIdx]
				out[i] = &v
			} else {
				m := mean(buf)
				sd := pstdev(buf, m)
				v := m - 1.65*sd
				out[i] = &v
			}
		}
	}
	return out
}

// normalizeSeries is the shared rolling normalizer behind sentiment and
// expected-return normalization: zscore, winsor (winsorized zscore), or
// minmax, optionally weighted for zscore/winsor.
func normalizeSeries(series []*float64, window int, method NormMethod, winsorAlpha float64, weights []*float64, minPoints int) []*float64 {
	out := make([]*float64, len(series))
	useW := weights != nil && (method == NormZScore || method == NormWinsor)

	var bufVals []float64
	var bufWts []float64

	for i, v := range series {
		var w *float64
		if weights != nil && i < len(weights) {
			w = weights[i]
		}

		if v != nil {
			bufVals = append(bufVals, *v)
			if useW {
				wv := 0.0
				if w != nil && *w > 0 {
					wv = *w
				}
				bufWts = append(bufWts, wv)
			}
		}
		if len(bufVals) > window {
			bufVals = bufVals[1:]
			if useW && len(bufWts) > 0 {
				bufWts = bufWts[1:]
			}
		}

		if len(bufVals) < minPoints {
			continue
		}

		switch method {
		case NormMinMax:
			if v == nil {
				continue
			}
			mn, mx := minMax(bufVals)
			if mn == mx {
				continue
			}
			mm := (*v - mn) / (mx - mn)
			val := mm*2.0 - 1.0
			out[i] = &val

		default:
			vals := append([]float64(nil), bufVals...)
			if method == NormWinsor {
				vals = winsorize(vals, winsorAlpha)
			}
			if useW {
				mu, sd := weightedStats(vals, bufWts)
				if mu == nil || sd == nil || *sd == 0 || v == nil {
					continue
				}
				xEff := *v
				if method == NormWinsor {
					xEff = clampToRange(xEff, vals)
				}
				val := (xEff - *mu) / *sd
				out[i] = &val
			} else {
				m := mean(vals)
				sd := pstdev(vals, m)
				if sd == 0 || v == nil {
					continue
				}
				xEff := *v
				if method == NormWinsor {
					xEff = clampToRange(xEff, vals)
				}
				val := (xEff - m) / sd
				out[i] = &val
			}
		}
	}
	return out
}

func clampToRange(v float64, vals []float64) float64 {
	mn, mx := minMax(vals)
	return math.Min(math.Max(v, mn), mx)
}

func minMax(vals []float64) (float64, float64) {
	mn, mx := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

// buildArticleWeightsCounts uses the raw per-day article count directly
// as an evidence weight.
func buildArticleWeightsCounts(stats map[time.Time]int, days []time.Time) []*float64 {
	out := make([]*float64, len(days))
	for i, d := range days {
		n := float64(stats[d])
		out[i] = &n
	}
	return out
}

// buildArticleWeightsNormed implements w_t = min((N_t/median_pos(N))^beta,
// cap), weight 0 on days with N_t = 0, defaulting the ratio's base to 1
// when no positive-count day exists yet (median undefined).
func buildArticleWeightsNormed(stats map[time.Time]int, days []time.Time, beta, cap float64) []*float64 {
	ns := make([]float64, len(days))
	for i, d := range days {
		ns[i] = float64(stats[d])
	}
	var pos []float64
	for _, n := range ns {
		if n > 0 {
			pos = append(pos, n)
		}
	}
	med := medianOf(pos)

	out := make([]*float64, len(days))
	for i, n := range ns {
		if n <= 0 {
			zero := 0.0
			out[i] = &zero
			continue
		}
		base := 1.0
		if med > 0 {
			base = n / med
		}
		w := math.Min(math.Pow(base, beta), cap)
		out[i] = &w
	}
	return out
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// blendPAlpha computes p_alpha_t = (1-alpha)*expReturnNorm_t +
// alpha*sentimentNorm_t, degenerating to whichever side is non-null when
// the other is null, and null when both are.
func blendPAlpha(expReturnNorm, sentimentNorm []*float64, alpha float64) []*float64 {
	out := make([]*float64, len(expReturnNorm))
	for i := range expReturnNorm {
		er, sn := expReturnNorm[i], sentimentNorm[i]
		switch {
		case er == nil && sn == nil:
			continue
		case er == nil:
			v := *sn
			out[i] = &v
		case sn == nil:
			v := *er
			out[i] = &v
		default:
			v := (1.0-alpha)*(*er) + alpha*(*sn)
			out[i] = &v
		}
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// pstdev is the population standard deviation (ddof=0), matching
// statistics.pstdev.
func pstdev(xs []float64, m float64) float64 {
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
