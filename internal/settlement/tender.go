package settlement

import (
	"math"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// TenderSplit: итог разбиения тендера относительно difference.
type TenderSplit struct {
	NotesTotal    float64
	EffectiveCash float64
	TotalTendered float64
	// Fee учтён только когда платит покупатель
	FeeApplied float64
	Due        float64
}

// NotesTotal считает Σ count[d] × d; неизвестные номиналы и отрицательные количества игнорируются.
func NotesTotal(counts domain.NoteCounts) float64 {
	var total float64
	for d, count := range counts {
		if count <= 0 || !domain.ValidDenomination(d) {
			continue
		}
		total += float64(d * count)
	}
	return total
}

// EffectiveCash: ненулевая сумма купюр имеет приоритет над ручным вводом.
func EffectiveCash(t domain.Tender) float64 {
	if notes := NotesTotal(t.Notes); notes > 0 {
		return notes
	}
	return t.Cash
}

// TotalTendered: сумма всех инструментов.
func TotalTendered(t domain.Tender) float64 {
	return EffectiveCash(t) + t.Card + t.Bkash + t.Nagad
}

// SplitTender считает остаток к оплате.
// difference > 0 (платит покупатель): due = max(0, difference - tendered + fee).
// difference <= 0 (возврат/ровный обмен): due = max(0, |difference| - tendered), fee игнорируется.
func SplitTender(t domain.Tender, difference float64) TenderSplit {
	split := TenderSplit{
		NotesTotal:    NotesTotal(t.Notes),
		EffectiveCash: EffectiveCash(t),
		TotalTendered: TotalTendered(t),
	}

	if difference > 0 {
		split.FeeApplied = t.Fee
		split.Due = math.Max(0, difference-split.TotalTendered+t.Fee)
		return split
	}

	split.Due = math.Max(0, math.Abs(difference)-split.TotalTendered)
	return split
}

// MethodDetails раскладывает тендер по инструментам для refund_method_details.
func MethodDetails(t domain.Tender) map[string]float64 {
	details := map[string]float64{}
	if cash := EffectiveCash(t); cash > 0 {
		details["cash"] = cash
	}
	if t.Card > 0 {
		details["card"] = t.Card
	}
	if t.Bkash > 0 {
		details["bkash"] = t.Bkash
	}
	if t.Nagad > 0 {
		details["nagad"] = t.Nagad
	}
	return details
}
