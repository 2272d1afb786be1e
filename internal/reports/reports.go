// Package reports computes read-only profit and revenue views over committed
// orders. Cost is taken from the product's current cost price, so editing a
// cost rewrites history in these reports.
package reports

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

var hundred = decimal.NewFromInt(100)

// MaxDailySpan bounds the range a daily breakdown may cover.
const MaxDailySpan = 366 * 24 * time.Hour

// Range bounds report queries by order creation time. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// ParseRange accepts any date layout dateparse understands. An upper bound
// given without a time of day covers that whole day.
func ParseRange(from, to string) (Range, error) {
	var r Range
	if from = strings.TrimSpace(from); from != "" {
		t, err := dateparse.ParseAny(from)
		if err != nil {
			return r, models.NewValidationError("from", "unrecognised date %q", from)
		}
		r.From = &t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := dateparse.ParseAny(to)
		if err != nil {
			return r, models.NewValidationError("to", "unrecognised date %q", to)
		}
		if !hasClock(to) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return r, models.NewValidationError("to", "end date is before start date")
	}
	return r, nil
}

// hasClock reports whether a date string carries a time of day.
func hasClock(s string) bool {
	return strings.Contains(s, ":")
}

// ParseStatuses splits a comma separated status list. Empty input yields nil,
// which reports treat as the revenue statuses.
func ParseStatuses(raw string) ([]models.OrderStatus, error) {
	var out []models.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		s := models.OrderStatus(part)
		if !s.Valid() {
			return nil, models.NewValidationError("status", "unknown order status %q", part)
		}
		out = append(out, s)
	}
	return out, nil
}

type ProductProfitLoss struct {
	ProductID     uint            `json:"product_id"`
	ProductName   string          `json:"product_name"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	QuantitySold  int             `json:"total_quantity_sold"`
	Revenue       decimal.Decimal `json:"total_revenue"`
	Cost          decimal.Decimal `json:"total_cost"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitMargin  decimal.Decimal `json:"profit_margin"`
	ProfitPerUnit decimal.Decimal `json:"profit_per_unit"`
}

type BusinessSummary struct {
	Revenue      decimal.Decimal     `json:"total_revenue"`
	Cost         decimal.Decimal     `json:"total_cost"`
	Profit       decimal.Decimal     `json:"total_profit"`
	ProfitMargin decimal.Decimal     `json:"total_profit_margin"`
	ProductsSold int                 `json:"total_products_sold"`
	Products     []ProductProfitLoss `json:"products"`
}

type FinancialMetrics struct {
	Revenue           decimal.Decimal `json:"total_revenue"`
	Cost              decimal.Decimal `json:"total_cost"`
	Profit            decimal.Decimal `json:"profit"`
	ProfitMargin      decimal.Decimal `json:"profit_margin"`
	OrderCount        int             `json:"order_count"`
	CancelledCount    int64           `json:"cancelled_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	MedianOrderValue  decimal.Decimal `json:"median_order_value"`
}

type DailyFinancials struct {
	Date       string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	Cost       decimal.Decimal `json:"cost"`
	Profit     decimal.Decimal `json:"profit"`
	OrderCount int             `json:"order_count"`
}

type ProductSales struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantitySold int             `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) orders(ctx context.Context, r Range, statuses []models.OrderStatus) ([]models.Order, error) {
	if len(statuses) == 0 {
		statuses = models.RevenueStatuses
	}
	q := s.db.WithContext(ctx).Where("status IN ?", statuses)
	if r.From != nil {
		q = q.Where("created_at >= ?", *r.From)
	}
	if r.To != nil {
		q = q.Where("created_at <= ?", *r.To)
	}
	var rows []models.Order
	if err := q.Preload("Items").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load orders for report")
	}
	return rows, nil
}

func (s *Service) products(ctx context.Context) (map[uint]models.Product, []models.Product, error) {
	var rows []models.Product
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, nil, errors.Wrap(err, "load products for report")
	}
	byID := make(map[uint]models.Product, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	return byID, rows, nil
}

func margin(profit, revenue decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return profit.Div(revenue).Mul(hundred).Round(2)
}

type tally struct {
	qty     int
	revenue decimal.Decimal
}

// ProfitLoss aggregates order lines per product for orders in r whose status
// is in statuses (revenue statuses when empty). Every product is listed,
// sorted by profit descending.
func (s *Service) ProfitLoss(ctx context.Context, r Range, statuses []models.OrderStatus) (*BusinessSummary, error) {
	orders, err := s.orders(ctx, r, statuses)
	if err != nil {
		return nil, err
	}
	_, products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	tallies := make(map[uint]*tally)
	for _, o := range orders {
		for _, item := range o.Items {
			t, ok := tallies[item.ProductID]
			if !ok {
				t = &tally{revenue: decimal.Zero}
				tallies[item.ProductID] = t
			}
			t.qty += item.Quantity
			t.revenue = t.revenue.Add(item.TotalPrice)
		}
	}

	summary := &BusinessSummary{
		Revenue:  decimal.Zero,
		Cost:     decimal.Zero,
		Products: make([]ProductProfitLoss, 0, len(products)),
	}
	for _, p := range products {
		t := tallies[p.ID]
		if t == nil {
			t = &tally{revenue: decimal.Zero}
		}
		cost := p.CostPrice.Mul(decimal.NewFromInt(int64(t.qty)))
		profit := t.revenue.Sub(cost)
		perUnit := p.Price
		if p.CostPrice.IsPositive() {
			perUnit = p.Price.Sub(p.CostPrice)
		}
		summary.Products = append(summary.Products, ProductProfitLoss{
			ProductID:     p.ID,
			ProductName:   p.Name,
			CostPrice:     p.CostPrice,
			SellingPrice:  p.Price,
			QuantitySold:  t.qty,
			Revenue:       t.revenue,
			Cost:          cost,
			Profit:        profit,
			ProfitMargin:  margin(profit, t.revenue),
			ProfitPerUnit: perUnit,
		})
		summary.Revenue = summary.Revenue.Add(t.revenue)
		summary.Cost = summary.Cost.Add(cost)
		summary.ProductsSold += t.qty
	}
	summary.Profit = summary.Revenue.Sub(summary.Cost)
	summary.ProfitMargin = margin(summary.Profit, summary.Revenue)

	sort.SliceStable(summary.Products, func(i, j int) bool {
		return summary.Products[i].Profit.GreaterThan(summary.Products[j].Profit)
	})
	return summary, nil
}

// FinancialSummary reports revenue, cost and order value statistics. Revenue
// here is the item subtotal; shipping is not income.
func (s *Service) FinancialSummary(ctx context.Context, r Range, statuses []models.OrderStatus) (*FinancialMetrics, error) {
	orders, err := s.orders(ctx, r, statuses)
	if err != nil {
		return nil, err
	}
	costs, _, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	m := &FinancialMetrics{
		Revenue:           decimal.Zero,
		Cost:              decimal.Zero,
		AverageOrderValue: decimal.Zero,
		MedianOrderValue:  decimal.Zero,
		OrderCount:        len(orders),
	}
	values := make(stats.Float64Data, 0, len(orders))
	for _, o := range orders {
		for _, item := range o.Items {
			m.Revenue = m.Revenue.Add(item.TotalPrice)
			m.Cost = m.Cost.Add(costs[item.ProductID].CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		values = append(values, o.Total.InexactFloat64())
	}
	m.Profit = m.Revenue.Sub(m.Cost)
	m.ProfitMargin = margin(m.Profit, m.Revenue)

	if len(values) > 0 {
		if mean, err := values.Mean(); err == nil {
			m.AverageOrderValue = decimal.NewFromFloat(mean).Round(2)
		}
		if median, err := values.Median(); err == nil {
			m.MedianOrderValue = decimal.NewFromFloat(median).Round(2)
		}
	}

	q := s.db.WithContext(ctx).Model(&models.Order{}).Where("status = ?", models.StatusCancelled)
	if r.From != nil {
		q = q.Where("created_at >= ?", *r.From)
	}
	if r.To != nil {
		q = q.Where("created_at <= ?", *r.To)
	}
	if err := q.Count(&m.CancelledCount).Error; err != nil {
		return nil, errors.Wrap(err, "count cancelled orders")
	}
	return m, nil
}

// Daily breaks the range down per calendar day (UTC). Days without orders
// are included with zero values when both ends of r are set.
func (s *Service) Daily(ctx context.Context, r Range, statuses []models.OrderStatus) ([]DailyFinancials, error) {
	if r.From != nil && r.To != nil && r.To.Sub(*r.From) > MaxDailySpan {
		return nil, models.NewValidationError("to", "daily reports cover at most %d days", int(MaxDailySpan/(24*time.Hour)))
	}
	orders, err := s.orders(ctx, r, statuses)
	if err != nil {
		return nil, err
	}
	costs, _, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	const layout = "2006-01-02"
	days := make(map[string]*DailyFinancials)
	var keys []string
	add := func(key string) *DailyFinancials {
		if d, ok := days[key]; ok {
			return d
		}
		d := &DailyFinancials{Date: key, Revenue: decimal.Zero, Cost: decimal.Zero}
		days[key] = d
		keys = append(keys, key)
		return d
	}

	if r.From != nil && r.To != nil {
		for day := r.From.UTC().Truncate(24 * time.Hour); !day.After(*r.To); day = day.Add(24 * time.Hour) {
			add(day.Format(layout))
		}
	}
	for _, o := range orders {
		d := add(o.CreatedAt.UTC().Format(layout))
		d.OrderCount++
		for _, item := range o.Items {
			d.Revenue = d.Revenue.Add(item.TotalPrice)
			d.Cost = d.Cost.Add(costs[item.ProductID].CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	sort.Strings(keys)
	out := make([]DailyFinancials, 0, len(keys))
	for _, k := range keys {
		d := days[k]
		d.Profit = d.Revenue.Sub(d.Cost)
		out = append(out, *d)
	}
	return out, nil
}

// TopProducts ranks sold products by revenue.
func (s *Service) TopProducts(ctx context.Context, r Range, statuses []models.OrderStatus, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = 10
	}
	summary, err := s.ProfitLoss(ctx, r, statuses)
	if err != nil {
		return nil, err
	}
	out := make([]ProductSales, 0, limit)
	for _, p := range summary.Products {
		if p.QuantitySold == 0 {
			continue
		}
		out = append(out, ProductSales{
			ProductID:    p.ProductID,
			ProductName:  p.ProductName,
			QuantitySold: p.QuantitySold,
			Revenue:      p.Revenue,
			Cost:         p.Cost,
			Profit:       p.Profit,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
