// Package catalog owns product and category records and is the only place
// that mutates product stock.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx so stock changes join the caller's
// transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	Slug        string          `json:"slug"` // derived from Name when empty
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	Stock       int             `json:"stock"`
	CategoryID  *uint           `json:"category_id"`
	ImageURL    string          `json:"image_url"`
}

// ProductPatch carries a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Slug        *string          `json:"slug"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	Stock       *int             `json:"stock"`
	CategoryID  *uint            `json:"category_id"`
	ImageURL    *string          `json:"image_url"`
}

type ListParams struct {
	Page       int
	PerPage    int
	Query      string
	Sort       string
	Order      string
	CategoryID *uint
}

// whitelist allowed sort columns to avoid SQL injection
var sortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"price":      "price",
	"stock":      "stock",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *Store) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load product %d", id)
	}
	return &p, nil
}

// GetBySlug looks a product up by its URL slug.
func (s *Store) GetBySlug(ctx context.Context, value string) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Preload("Category").Where("slug = ?", strings.ToLower(strings.TrimSpace(value))).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load product %q", value)
	}
	return &p, nil
}

// GetMany loads the given products keyed by ID. Missing IDs are simply absent.
func (s *Store) GetMany(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load products")
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, params ListParams) ([]models.Product, int64, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 || perPage > 500 {
		perPage = 20
	}
	sortCol, ok := sortColumns[params.Sort]
	if !ok {
		sortCol = "id"
	}
	order := strings.ToUpper(params.Order)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	q := s.searchScope(s.db.WithContext(ctx).Model(&models.Product{}), params.Query)
	if params.CategoryID != nil {
		q = q.Where("category_id = ?", *params.CategoryID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}

	var rows []models.Product
	err := q.Order(sortCol + " " + order).Offset((page - 1) * perPage).Limit(perPage).Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	return rows, total, nil
}

// Search matches name or description, case-insensitively.
func (s *Store) Search(ctx context.Context, query string) ([]models.Product, error) {
	var rows []models.Product
	err := s.searchScope(s.db.WithContext(ctx).Model(&models.Product{}), query).
		Order("name ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	return rows, nil
}

func (s *Store) searchScope(q *gorm.DB, query string) *gorm.DB {
	query = strings.TrimSpace(query)
	if query == "" {
		return q
	}
	if strings.EqualFold(s.db.Dialector.Name(), "postgres") {
		like := "%" + query + "%"
		return q.Where("name ILIKE ? OR description ILIKE ?", like, like)
	}
	like := "%" + strings.ToLower(query) + "%"
	return q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
}

func (s *Store) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateProduct(&in.Name, &in.Description, &in.Price, &in.CostPrice, &in.Stock); err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	productSlug, err := s.pickSlug(ctx, in.Slug, in.Name)
	if err != nil {
		return nil, err
	}

	p := models.Product{
		Name:        in.Name,
		Slug:        productSlug,
		Description: in.Description,
		Price:       in.Price.Round(2),
		CostPrice:   in.CostPrice.Round(2),
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return s.getWithCategory(ctx, p.ID)
}

func (s *Store) Update(ctx context.Context, id uint, patch ProductPatch) (*models.Product, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		*patch.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		*patch.Description = strings.TrimSpace(*patch.Description)
	}
	if err := validateProduct(patch.Name, patch.Description, patch.Price, patch.CostPrice, patch.Stock); err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, patch.CategoryID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Slug != nil {
		value := strings.TrimSpace(*patch.Slug)
		if value != p.Slug {
			if err := s.checkSlug(ctx, value, id); err != nil {
				return nil, err
			}
			updates["slug"] = value
		}
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Price != nil {
		updates["price"] = patch.Price.Round(2)
	}
	if patch.CostPrice != nil {
		updates["cost_price"] = patch.CostPrice.Round(2)
	}
	if patch.Stock != nil {
		updates["stock"] = *patch.Stock
	}
	if patch.CategoryID != nil {
		updates["category_id"] = *patch.CategoryID
	}
	if patch.ImageURL != nil {
		updates["image_url"] = strings.TrimSpace(*patch.ImageURL)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
			return nil, errors.Wrapf(err, "update product %d", id)
		}
	}
	return s.getWithCategory(ctx, id)
}

// Delete removes a product that no order line, sale or review refers to.
// Cart lines pointing at it are dropped with it.
func (s *Store) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.ProductNotFoundError{ProductID: id}
			}
			return errors.Wrapf(err, "load product %d", id)
		}
		for _, ref := range []interface{}{&models.OrderItem{}, &models.Sale{}, &models.Review{}} {
			var n int64
			if err := tx.Model(ref).Where("product_id = ?", id).Count(&n).Error; err != nil {
				return errors.Wrap(err, "count product references")
			}
			if n > 0 {
				return models.ErrProductInUse
			}
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return errors.Wrap(err, "drop cart lines")
		}
		if err := tx.Delete(&p).Error; err != nil {
			return errors.Wrapf(err, "delete product %d", id)
		}
		return nil
	})
}

// LowStock returns products with 0 <= stock <= threshold, lowest first.
func (s *Store) LowStock(ctx context.Context, threshold int) ([]models.Product, error) {
	var rows []models.Product
	err := s.db.WithContext(ctx).
		Where("stock >= 0 AND stock <= ?", threshold).
		Order("stock ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query low stock")
	}
	return rows, nil
}

// pickSlug validates an explicit slug, or derives one from name and appends
// -2, -3, ... until it is free.
func (s *Store) pickSlug(ctx context.Context, explicit, name string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, s.checkSlug(ctx, explicit, 0)
	}
	base := slug.Make(name)
	if base == "" {
		base = "product"
	}
	candidate := base
	for i := 2; ; i++ {
		taken, err := s.slugTaken(ctx, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Store) checkSlug(ctx context.Context, value string, exceptID uint) error {
	if !slug.IsSlug(value) {
		return models.NewValidationError("slug", "slug must be lowercase letters, digits and single hyphens")
	}
	taken, err := s.slugTaken(ctx, value, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return models.NewValidationError("slug", "slug %q is already in use", value)
	}
	return nil
}

func (s *Store) slugTaken(ctx context.Context, value string, exceptID uint) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.Product{}).Where("slug = ?", value)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "check slug")
	}
	return n > 0, nil
}

func (s *Store) getWithCategory(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Preload("Category").First(&p, id).Error; err != nil {
		return nil, errors.Wrapf(err, "reload product %d", id)
	}
	return &p, nil
}

func (s *Store) ensureCategory(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check category")
	}
	if n == 0 {
		return models.ErrCategoryNotFound
	}
	return nil
}

func validateProduct(name, description *string, price, cost *decimal.Decimal, stock *int) error {
	if name != nil && len([]rune(*name)) < 2 {
		return models.NewValidationError("name", "product name must be at least 2 characters")
	}
	if description != nil && len([]rune(*description)) < 5 {
		return models.NewValidationError("description", "product description must be at least 5 characters")
	}
	if price != nil && price.IsNegative() {
		return models.NewValidationError("price", "price cannot be negative")
	}
	if cost != nil && cost.IsNegative() {
		return models.NewValidationError("cost_price", "cost price cannot be negative")
	}
	if stock != nil && *stock < 0 {
		return models.NewValidationError("stock", "stock cannot be negative")
	}
	return nil
}
