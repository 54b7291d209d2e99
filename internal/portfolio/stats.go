package portfolio

import "spot-trader/internal/model"

// StatsFromTrades aggregates trades. Win rate, average, best and worst are
// taken over trades with a known P&L only. TotalPnLPercent is relative to
// initialBalance and 0 when it is not positive.
func StatsFromTrades(trades []model.Trade, initialBalance float64) model.TradeStats {
	var s model.TradeStats
	if len(trades) == 0 {
		return s
	}

	var withPnL int
	for _, t := range trades {
		s.TotalVolume += t.QuoteQuantity
		if t.Commission != nil {
			s.TotalFees += *t.Commission
		}
		if t.Side == model.SideBuy {
			s.BuyCount++
		} else {
			s.SellCount++
		}

		if t.PnL == nil {
			continue
		}
		pnl := *t.PnL
		if withPnL == 0 || pnl > s.BestTrade {
			s.BestTrade = pnl
		}
		if withPnL == 0 || pnl < s.WorstTrade {
			s.WorstTrade = pnl
		}
		withPnL++
		s.TotalPnL += pnl
		switch {
		case pnl > 0:
			s.WinningTrades++
		case pnl < 0:
			s.LosingTrades++
		}
	}

	s.TotalTrades = len(trades)
	if withPnL > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(withPnL) * 100
		s.AveragePnL = s.TotalPnL / float64(withPnL)
	}
	if initialBalance > 0 {
		s.TotalPnLPercent = s.TotalPnL / initialBalance * 100
	}
	return s
}
