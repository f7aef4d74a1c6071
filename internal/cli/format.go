package cli

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ict-signals/internal/models"
	"ict-signals/internal/store"
	"ict-signals/pkg/utils"
)

// RenderSignal prints the full signal report.
func RenderSignal(out *Output, sig models.TradeSignal) {
	out.Printf("%s  %s  %s\n", out.BoldText(sig.Symbol), out.DirectionText(sig.Direction), sig.GeneratedAt.Format("2006-01-02 15:04"))
	out.Printf("  Confidence:  %.0f%% (%s, %d confluences)\n", sig.Confidence, out.QualityText(sig.Quality), sig.ConfluenceCount)
	out.Printf("  Price:       %s\n", utils.FormatPrice(sig.CurrentPrice))
	if sig.DataQuality != models.DataReal {
		out.Warning("  Data:        %s (no usable market data, do not trade)", sig.DataQuality)
	}

	if sig.Direction != models.DirectionHold {
		out.Println()
		out.Bold("Trade Levels")
		out.Printf("  Entry:       %s - %s\n", utils.FormatPrice(sig.EntryZone.Low), utils.FormatPrice(sig.EntryZone.High))
		out.Printf("  Stop Loss:   %s (%s)\n", out.Red(utils.FormatPrice(sig.StopLoss)), pctFrom(sig.CurrentPrice, sig.StopLoss))
		out.Printf("  Target 1:    %s (%s)\n", out.Green(utils.FormatPrice(sig.TakeProfit1)), pctFrom(sig.CurrentPrice, sig.TakeProfit1))
		out.Printf("  Target 2:    %s (%s)\n", out.Green(utils.FormatPrice(sig.TakeProfit2)), pctFrom(sig.CurrentPrice, sig.TakeProfit2))
		out.Printf("  Risk/Reward: %s\n", utils.FormatRiskReward(sig.RiskReward))
	}

	out.Println()
	out.Bold("Market Structure")
	st := sig.Structure
	out.Printf("  Bias:        %s (strength %.2f)\n", out.BiasText(st.Classification), st.Strength)
	if st.BreakOfStructure != "" {
		out.Printf("  BOS:         %s\n", st.BreakOfStructure)
	}
	out.Printf("  Zones:       %d order blocks, %d FVGs, %d liquidity pools\n", st.OrderBlocks, st.FairValueGaps, st.LiquidityPools)
	renderZone(out, "Nearest OB", st.NearestOrderBlock)
	renderZone(out, "Nearest FVG", st.NearestFVG)
	renderZone(out, "Liquidity", st.NearestLiquidityPool)
	out.Printf("  Session:     %s (%s)\n", st.KillZone, st.SessionQuality)
	if st.InOTE {
		out.Printf("  OTE:         %s\n", st.OTELevel)
	}

	out.Println()
	out.Bold("Indicators")
	ind := sig.Indicators
	if ind.Minimal {
		out.Dim("  Minimal set (not enough bars)")
	}
	out.Printf("  Trend:       %s (%.2f)\n", out.BiasText(ind.TrendDirection), ind.TrendStrength)
	out.Printf("  RSI:         %.1f\n", ind.RSI)
	out.Printf("  MACD:        %s (hist %.2f)\n", signWord(ind.MACDSign), ind.MACDHistogram)
	out.Printf("  Bollinger:   %s\n", ind.BBPosition)
	out.Printf("  Volume:      %s (%.2fx)\n", ind.VolumeStrength, ind.VolumeRatio)
	out.Printf("  ATR:         %s (rank %.0f)\n", utils.FormatPrice(ind.ATR), ind.VolatilityRank)

	out.Println()
	out.Bold("Multi-Timeframe")
	mtf := sig.MultiTimeframe
	out.Printf("  Bias:        %s (strength %.2f, score %+.2f)\n", out.BiasText(mtf.OverallBias), mtf.Strength, mtf.Score)
	if len(mtf.Timeframes) > 0 {
		table := NewTable(out, "TF", "SCORE", "WEIGHT", "BARS")
		for _, tf := range sortedTimeframes(mtf.Timeframes) {
			table.AddRow(string(tf.Timeframe), fmt.Sprintf("%+.2f", tf.Score), fmt.Sprintf("%.2f", tf.Weight), fmt.Sprintf("%d", tf.Bars))
		}
		table.Render()
	}

	if len(sig.Reasons) > 0 {
		out.Println()
		out.Bold("Reasons")
		for _, r := range sig.Reasons {
			out.Printf("  - %s\n", r)
		}
	}
}

func renderZone(out *Output, label string, z *models.ZoneRef) {
	if z == nil {
		return
	}
	out.Printf("  %-12s %s %s - %s\n", label+":", z.Type, utils.FormatPrice(z.Low), utils.FormatPrice(z.High))
}

func sortedTimeframes(in []models.TimeframeScore) []models.TimeframeScore {
	out := append([]models.TimeframeScore(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timeframe.Rank() < out[j].Timeframe.Rank() })
	return out
}

// RenderSignalTable prints signals one per row.
func RenderSignalTable(out *Output, signals []models.TradeSignal) {
	if len(signals) == 0 {
		out.Dim("No signals")
		return
	}
	table := NewTable(out, "TIME", "SYMBOL", "DIR", "CONF", "QUALITY", "PRICE", "STOP", "TP1", "R:R", "DATA")
	for _, s := range signals {
		table.AddRow(
			s.GeneratedAt.Format("01-02 15:04"),
			s.Symbol,
			out.DirectionText(s.Direction),
			fmt.Sprintf("%.0f%%", s.Confidence),
			out.QualityText(s.Quality),
			utils.FormatPrice(s.CurrentPrice),
			levelOrDash(s, s.StopLoss),
			levelOrDash(s, s.TakeProfit1),
			utils.FormatRiskReward(s.RiskReward),
			string(s.DataQuality),
		)
	}
	table.Render()
}

func levelOrDash(s models.TradeSignal, v float64) string {
	if s.Direction == models.DirectionHold {
		return "-"
	}
	return utils.FormatPrice(v)
}

// RenderSyncStatus prints one line per synced timeframe.
func RenderSyncStatus(out *Output, statuses []store.SyncStatus) {
	for _, st := range statuses {
		line := store.FormatSyncStatus(st)
		switch {
		case st.Error != nil:
			out.Error("%s", line)
		case st.Bars == 0:
			out.Dim("%s", line)
		default:
			out.Success("%s", line)
		}
	}
}

// pctFrom formats the signed distance of level from price.
func pctFrom(price, level float64) string {
	if price == 0 {
		return "n/a"
	}
	return utils.FormatPercent((level - price) / price * 100)
}

func signWord(sign int) string {
	switch {
	case sign > 0:
		return "bullish"
	case sign < 0:
		return "bearish"
	default:
		return "flat"
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatSeriesValue renders the last finite value of an indicator output.
func formatSeriesValue(values []float64) string {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
			return fmt.Sprintf("%.2f", values[i])
		}
	}
	return "-"
}

func joinTimeframes(tfs []models.Timeframe) string {
	parts := make([]string, len(tfs))
	for i, tf := range tfs {
		parts[i] = string(tf)
	}
	return strings.Join(parts, ",")
}
