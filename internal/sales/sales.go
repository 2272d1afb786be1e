// Package sales keeps the denormalised per-line reporting rows written at
// checkout. They are secondary to orders: losing one never loses a sale.
package sales

import (
	"context"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// Recorder writes Sale rows for a freshly created order.
type Recorder struct{}

// RecordOrder inserts one Sale per order line using tx. costs maps product ID
// to the unit cost at the time of sale.
func (Recorder) RecordOrder(tx *gorm.DB, order *models.Order, costs map[uint]decimal.Decimal) error {
	if len(order.Items) == 0 {
		return nil
	}
	rows := make([]models.Sale, 0, len(order.Items))
	for _, item := range order.Items {
		sale := models.NewSale(item.ProductID, item.Quantity, item.UnitPrice, costs[item.ProductID])
		orderID := order.ID
		sale.OrderID = &orderID
		sale.UserID = order.UserID
		rows = append(rows, sale)
	}
	return errors.Wrap(tx.Create(&rows).Error, "record sales")
}

// DeleteForOrder drops the reporting rows of a cancelled order.
func DeleteForOrder(tx *gorm.DB, orderID uint) error {
	return errors.Wrap(tx.Where("order_id = ?", orderID).Delete(&models.Sale{}).Error, "delete sales")
}

type Filter struct {
	From      *time.Time
	To        *time.Time
	ProductID *uint
	Page      int
	PerPage   int
}

// Row is a sale joined with the names a report reader needs.
type Row struct {
	models.Sale `gorm:"embedded"`
	ProductName string `json:"product_name"`
	OrderNumber string `json:"order_number"`
}

type Totals struct {
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
	Cost     decimal.Decimal `json:"cost"`
	Profit   decimal.Decimal `json:"profit"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Sale{})
	if f.From != nil {
		q = q.Where("sales.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("sales.created_at <= ?", *f.To)
	}
	if f.ProductID != nil {
		q = q.Where("sales.product_id = ?", *f.ProductID)
	}
	return q
}

// List returns sales newest first. PerPage <= 0 returns every match.
func (s *Store) List(ctx context.Context, f Filter) ([]Row, int64, error) {
	var total int64
	if err := s.scoped(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count sales")
	}

	q := s.scoped(ctx, f).
		Select("sales.*, products.name AS product_name, orders.number AS order_number").
		Joins("LEFT JOIN products ON products.id = sales.product_id").
		Joins("LEFT JOIN orders ON orders.id = sales.order_id").
		Order("sales.created_at DESC, sales.id DESC")
	if f.PerPage > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.PerPage).Limit(f.PerPage)
	}

	var rows []Row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list sales")
	}
	return rows, total, nil
}

func (s *Store) Totals(ctx context.Context, f Filter) (Totals, error) {
	var (
		qty                   int64
		revenue, cost, profit decimal.NullDecimal
	)
	row := s.scoped(ctx, f).
		Select("COALESCE(SUM(quantity), 0), SUM(total_amount), SUM(cost_price * quantity), SUM(profit)").
		Row()
	if err := row.Scan(&qty, &revenue, &cost, &profit); err != nil {
		return Totals{}, errors.Wrap(err, "sum sales")
	}
	return Totals{
		Quantity: qty,
		Revenue:  revenue.Decimal.Round(2),
		Cost:     cost.Decimal.Round(2),
		Profit:   profit.Decimal.Round(2),
	}, nil
}

type csvRow struct {
	Date        string `csv:"date"`
	OrderNumber string `csv:"order_number"`
	ProductID   uint   `csv:"product_id"`
	ProductName string `csv:"product_name"`
	Quantity    int    `csv:"quantity"`
	SalePrice   string `csv:"sale_price"`
	CostPrice   string `csv:"cost_price"`
	TotalAmount string `csv:"total_amount"`
	Profit      string `csv:"profit"`
}

// ExportCSV writes every sale matching f as CSV with a header row.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	f.PerPage = 0
	rows, _, err := s.List(ctx, f)
	if err != nil {
		return err
	}
	out := make([]*csvRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &csvRow{
			Date:        r.CreatedAt.Format("2006-01-02 15:04:05"),
			OrderNumber: r.OrderNumber,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			SalePrice:   r.SalePrice.StringFixed(2),
			CostPrice:   r.CostPrice.StringFixed(2),
			TotalAmount: r.TotalAmount.StringFixed(2),
			Profit:      r.Profit.StringFixed(2),
		})
	}
	return errors.Wrap(gocsv.Marshal(&out, w), "write sales csv")
}
