package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// ListCustomers pages through customers, newest first. An empty role lists
// everyone.
func (s *Service) ListCustomers(ctx context.Context, role string, page, perPage int) ([]models.Customer, int64, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" && !models.ValidRole(role) {
		return nil, 0, models.NewValidationError("role", "unknown role %q", role)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Customer{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count customers")
	}

	var list []models.Customer
	err := q.Order("id DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&list).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list customers")
	}
	return list, total, nil
}

func (s *Service) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var cust models.Customer
	err := s.db.WithContext(ctx).First(&cust, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrCustomerNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load customer %d", id)
	}
	return &cust, nil
}

// SetRole changes a customer's role on behalf of the admin actorID. Admins
// cannot change their own role, and addresses listed in admin_emails stay
// admins.
func (s *Service) SetRole(ctx context.Context, actorID, id uint, role string) (*models.Customer, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !models.ValidRole(role) {
		return nil, models.NewValidationError("role", "role must be %q or %q", models.RoleCustomer, models.RoleAdmin)
	}
	if actorID == id {
		return nil, models.NewValidationError("role", "you cannot change your own role")
	}

	cust, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust.Role == role {
		return cust, nil
	}
	if role != models.RoleAdmin && s.shop.IsAdminEmail(cust.Email) {
		return nil, models.NewValidationError("role", "%s is a configured admin address", cust.Email)
	}

	if err := s.db.WithContext(ctx).Model(cust).Update("role", role).Error; err != nil {
		return nil, errors.Wrapf(err, "update role of customer %d", id)
	}
	cust.Role = role
	return cust, nil
}
