package service

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
)

// DefaultTopProducts is the ranking length used when n <= 0.
const DefaultTopProducts = 3

// ProductTotal is one row of the best-sellers ranking.
type ProductTotal struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// MethodTotal is the revenue collected through one payment method.
type MethodTotal struct {
	Method string          `json:"method"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// DayTotal is the revenue of one calendar day.
type DayTotal struct {
	Date  string          `json:"date"` // YYYY-MM-DD
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Summary is the headline of a sales period.
type Summary struct {
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
	Average decimal.Decimal `json:"average"`
}

// TopProductsByQuantity ranks products by units sold, highest first. Ties
// keep the order in which products were first seen.
func TopProductsByQuantity(sales []model.Sale, n int) []ProductTotal {
	if n <= 0 {
		n = DefaultTopProducts
	}

	index := map[string]int{}
	totals := []ProductTotal{}
	for _, s := range sales {
		for _, l := range s.LineItems {
			i, ok := index[l.ProductID]
			if !ok {
				i = len(totals)
				index[l.ProductID] = i
				totals = append(totals, ProductTotal{ProductID: l.ProductID, Name: l.Name, Revenue: decimal.Zero})
			}
			totals[i].Quantity += l.QuantitySold
			totals[i].Revenue = totals[i].Revenue.Add(l.Subtotal())
		}
	}

	sort.SliceStable(totals, func(i, j int) bool { return totals[i].Quantity > totals[j].Quantity })
	if len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

// TotalsByPaymentMethod buckets revenue by method. Every known method is
// present in enum.PaymentMethods order; unknown or missing methods count as
// other.
func TotalsByPaymentMethod(sales []model.Sale) []MethodTotal {
	index := make(map[string]int, len(enum.PaymentMethods))
	out := make([]MethodTotal, len(enum.PaymentMethods))
	for i, m := range enum.PaymentMethods {
		index[m] = i
		out[i] = MethodTotal{Method: m, Total: decimal.Zero}
	}

	for _, s := range sales {
		i, ok := index[strings.ToLower(strings.TrimSpace(s.PaymentMethod))]
		if !ok {
			i = index[enum.PaymentMethodOther]
		}
		out[i].Total = out[i].Total.Add(s.Total)
		out[i].Count++
	}
	return out
}

// DailyTotals groups sales by calendar day in loc, oldest day first.
func DailyTotals(sales []model.Sale, loc *time.Location) []DayTotal {
	if loc == nil {
		loc = time.UTC
	}
	byDay := map[string]*DayTotal{}
	for _, s := range sales {
		day := s.Timestamp.In(loc).Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &DayTotal{Date: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Total = d.Total.Add(s.Total)
		d.Count++
	}

	out := make([]DayTotal, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// SalesSummary totals revenue and counts sales.
func SalesSummary(sales []model.Sale) Summary {
	sum := Summary{Revenue: decimal.Zero, Average: decimal.Zero}
	for _, s := range sales {
		sum.Revenue = sum.Revenue.Add(s.Total)
		sum.Count++
	}
	if sum.Count > 0 {
		sum.Average = sum.Revenue.Div(decimal.NewFromInt(int64(sum.Count))).Round(2)
	}
	return sum
}
