// Package reviews stores product ratings from customers who received the
// product.
package reviews

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
)

const maxCommentLength = 2000

type Input struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

type RatingCount struct {
	Rating int   `json:"rating"`
	Count  int64 `json:"count"`
}

type Stats struct {
	Average      float64       `json:"average_rating"`
	Total        int64         `json:"total_reviews"`
	Distribution []RatingCount `json:"rating_distribution"`
}

// WithAuthor is a review plus the reviewer's display name.
type WithAuthor struct {
	models.Review `gorm:"embedded"`
	UserName      string `json:"user_name"`
}

type Service struct {
	db        *gorm.DB
	publisher events.Publisher
}

func NewService(db *gorm.DB, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{db: db, publisher: publisher}
}

func validate(in Input) (Input, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return in, models.NewValidationError("rating", "rating must be between 1 and 5")
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if len([]rune(in.Comment)) > maxCommentLength {
		return in, models.NewValidationError("comment", "comment must be at most %d characters", maxCommentLength)
	}
	return in, nil
}

// HasPurchased reports whether the user has a delivered order containing the
// product.
func (s *Service) HasPurchased(ctx context.Context, userID, productID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ? AND order_items.product_id = ?",
			userID, models.StatusDelivered, productID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "check purchase")
	}
	return n > 0, nil
}

func (s *Service) Create(ctx context.Context, userID, productID uint, in Input) (*models.Review, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.ProductNotFoundError{ProductID: productID}
		}
		return nil, errors.Wrap(err, "load product")
	}

	bought, err := s.HasPurchased(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if !bought {
		return nil, models.ErrNotPurchased
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&existing).Error; err != nil {
		return nil, errors.Wrap(err, "check existing review")
	}
	if existing > 0 {
		return nil, models.ErrAlreadyReviewed
	}

	review := models.Review{ProductID: productID, UserID: userID, Rating: in.Rating, Comment: in.Comment}
	if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
		return nil, errors.Wrap(err, "create review")
	}

	s.publisher.Publish(events.TopicReviewCreated, events.ReviewCreated{
		ReviewID: review.ID, ProductID: productID, ProductName: product.Name, UserID: userID, Rating: review.Rating,
	})
	return &review, nil
}

// ownReview loads a review the user may change. Admins may change any review.
func (s *Service) ownReview(ctx context.Context, id, userID uint, admin bool) (*models.Review, error) {
	var review models.Review
	err := s.db.WithContext(ctx).First(&review, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrReviewNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load review")
	}
	if !admin && review.UserID != userID {
		return nil, models.ErrForbidden
	}
	return &review, nil
}

func (s *Service) Update(ctx context.Context, id, userID uint, in Input) (*models.Review, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}
	review, err := s.ownReview(ctx, id, userID, false)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(review).Updates(map[string]interface{}{
		"rating":  in.Rating,
		"comment": in.Comment,
	}).Error
	if err != nil {
		return nil, errors.Wrap(err, "update review")
	}
	review.Rating, review.Comment = in.Rating, in.Comment
	return review, nil
}

func (s *Service) Delete(ctx context.Context, id, userID uint, admin bool) error {
	review, err := s.ownReview(ctx, id, userID, admin)
	if err != nil {
		return err
	}
	return errors.Wrap(s.db.WithContext(ctx).Delete(review).Error, "delete review")
}

// ListForProduct returns reviews newest first. minRating 0 disables the
// filter.
func (s *Service) ListForProduct(ctx context.Context, productID uint, minRating int) ([]WithAuthor, error) {
	q := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("reviews.*, customers.name AS user_name").
		Joins("LEFT JOIN customers ON customers.id = reviews.user_id").
		Where("reviews.product_id = ?", productID)
	if minRating > 0 {
		q = q.Where("reviews.rating >= ?", minRating)
	}
	var rows []WithAuthor
	if err := q.Order("reviews.created_at DESC, reviews.id DESC").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	return rows, nil
}

// ProductStats returns the average rating rounded to one decimal and the
// count for each star value.
func (s *Service) ProductStats(ctx context.Context, productID uint) (*Stats, error) {
	var rows []RatingCount
	err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("product_id = ?", productID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "review stats")
	}

	counts := make(map[int]int64, len(rows))
	for _, r := range rows {
		counts[r.Rating] = r.Count
	}

	st := &Stats{Distribution: make([]RatingCount, 0, 5)}
	var sum int64
	for rating := 1; rating <= 5; rating++ {
		c := counts[rating]
		st.Distribution = append(st.Distribution, RatingCount{Rating: rating, Count: c})
		st.Total += c
		sum += int64(rating) * c
	}
	if st.Total > 0 {
		st.Average = math.Round(float64(sum)/float64(st.Total)*10) / 10
	}
	return st, nil
}
