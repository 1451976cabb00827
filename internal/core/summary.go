package core

import "github.com/shopspring/decimal"

// Indicators are the headline figures of a dataset.
type Indicators struct {
	Count int             `json:"count"`
	Min   decimal.Decimal `json:"min"`
	Max   decimal.Decimal `json:"max"`
	Mean  decimal.Decimal `json:"mean"`
	Sum   decimal.Decimal `json:"sum"`
}

// PeriodTotal is the amount aggregated for a single period (YYYYMM).
type PeriodTotal struct {
	Period string          `json:"period"`
	Total  decimal.Decimal `json:"total"`
}

// GroupTotal is the amount aggregated by period and one categorical value.
type GroupTotal struct {
	Period string          `json:"period"`
	Value  string          `json:"value"`
	Total  decimal.Decimal `json:"total"`
}
