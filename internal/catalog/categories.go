package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

func (s *Store) CreateCategory(ctx context.Context, name string, parentID *uint) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("name", "category name is required")
	}
	if err := s.ensureCategory(ctx, parentID); err != nil {
		return nil, err
	}

	category := models.Category{Name: name, ParentID: parentID}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	if err := s.db.WithContext(ctx).Preload("Parent").First(&category, category.ID).Error; err != nil {
		return nil, errors.Wrap(err, "reload category")
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return rows, nil
}

// DescendantIDs walks the category tree breadth-first and returns rootID plus
// every category below it.
func (s *Store) DescendantIDs(ctx context.Context, rootID uint) ([]uint, error) {
	var root models.Category
	if err := s.db.WithContext(ctx).First(&root, rootID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrCategoryNotFound
		}
		return nil, errors.Wrap(err, "load category")
	}

	result := []uint{rootID}
	queue := []uint{rootID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var children []models.Category
		if err := s.db.WithContext(ctx).Where("parent_id = ?", current).Find(&children).Error; err != nil {
			return nil, errors.Wrap(err, "load child categories")
		}
		for _, child := range children {
			result = append(result, child.ID)
			queue = append(queue, child.ID)
		}
	}
	return result, nil
}

// AveragePrice is the mean product price across a category and its subtree.
func (s *Store) AveragePrice(ctx context.Context, categoryID uint) (decimal.Decimal, error) {
	ids, err := s.DescendantIDs(ctx, categoryID)
	if err != nil {
		return decimal.Zero, err
	}

	var avg decimal.NullDecimal
	row := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("category_id IN ?", ids).
		Select("AVG(price)").
		Row()
	if err := row.Scan(&avg); err != nil {
		return decimal.Zero, errors.Wrap(err, "average price")
	}
	if !avg.Valid {
		return decimal.Zero, nil
	}
	return avg.Decimal.Round(2), nil
}
