package domain

import "time"

type PricePoint struct {
	Symbol   string
	Date     time.Time
	Close    float64
	Currency string
	Source   string
}

type FxRatePoint struct {
	From   string
	To     string
	Date   time.Time
	Rate   float64
	Source string
}

func PairKey(from, to string) string {
	return from + "_" + to
}
