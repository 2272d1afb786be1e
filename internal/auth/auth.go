// Package auth signs customers in through an OpenID Connect provider and keeps
// their identity in a cookie session.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/models"
)

const (
	SessionName = "gosess"

	sessionCustomerKey = "customer_id"
	sessionCartKey     = "cart_id"
	sessionStateKey    = "oauth_state"

	contextCustomerKey = "customer"
)

// Claims are the ID token fields mapped onto a Customer.
type Claims struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone_number"`
}

// CartMerger moves a guest cart into the signed-in customer's cart.
type CartMerger interface {
	Merge(ctx context.Context, from, to cart.Owner) error
}

type Service struct {
	db           *gorm.DB
	shop         config.ShopConfig
	carts        CartMerger
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	log          *zap.Logger
}

// New creates a Service without an identity provider. Session based guards
// work; Login and Callback answer 503 until Connect succeeds.
func New(db *gorm.DB, shop config.ShopConfig, carts CartMerger, log *zap.Logger) *Service {
	return &Service{db: db, shop: shop, carts: carts, log: log}
}

// Connect discovers the OIDC provider.
func (s *Service) Connect(ctx context.Context, cfg config.OIDCConfig) error {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return errors.Wrap(err, "OIDC provider init")
	}

	s.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	s.oauth2Config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "phone"},
	}
	return nil
}

// GET /auth/login
func (s *Service) Login(c *gin.Context) {
	if s.oauth2Config == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}
	state := uuid.NewString()
	sess := sessions.Default(c)
	sess.Set(sessionStateKey, state)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	c.Redirect(http.StatusFound, s.oauth2Config.AuthCodeURL(state))
}

// GET /auth/callback
func (s *Service) Callback(c *gin.Context) {
	if s.oauth2Config == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}

	sess := sessions.Default(c)
	expected, _ := sess.Get(sessionStateKey).(string)
	if expected == "" || c.Query("state") != expected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	sess.Delete(sessionStateKey)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code missing"})
		return
	}

	ctx := c.Request.Context()
	oauth2Token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token exchange failed"})
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no id_token in token response"})
		return
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token verification failed"})
		return
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claims parse error"})
		return
	}

	cust, err := s.UpsertCustomer(ctx, claims)
	if err != nil {
		s.log.Error("customer upsert failed", zap.String("sub", claims.Sub), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign in"})
		return
	}

	if err := s.SignIn(c, cust); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged in", "customer": cust})
}

// POST /auth/logout
func (s *Service) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// UpsertCustomer finds the customer by subject or creates one. Customers whose
// email is configured as an admin email are promoted on every sign in.
func (s *Service) UpsertCustomer(ctx context.Context, claims Claims) (*models.Customer, error) {
	if claims.Sub == "" {
		return nil, models.NewValidationError("sub", "subject claim missing")
	}

	var cust models.Customer
	err := s.db.WithContext(ctx).Where("o_id_c_id = ?", claims.Sub).First(&cust).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cust = models.Customer{
			OIDCID: claims.Sub,
			Name:   claims.Name,
			Email:  strings.ToLower(claims.Email),
			Phone:  claims.Phone,
			Role:   models.RoleCustomer,
		}
		if s.shop.IsAdminEmail(cust.Email) {
			cust.Role = models.RoleAdmin
		}
		if err := s.db.WithContext(ctx).Create(&cust).Error; err != nil {
			return nil, errors.Wrap(err, "create customer")
		}
	case err != nil:
		return nil, errors.Wrap(err, "load customer")
	default:
		if s.shop.IsAdminEmail(cust.Email) && cust.Role != models.RoleAdmin {
			cust.Role = models.RoleAdmin
			if err := s.db.WithContext(ctx).Model(&cust).Update("role", models.RoleAdmin).Error; err != nil {
				return nil, errors.Wrap(err, "promote customer")
			}
		}
	}
	return &cust, nil
}

// SignIn stores the customer in the session and folds any guest cart into the
// customer's cart.
func (s *Service) SignIn(c *gin.Context, cust *models.Customer) error {
	sess := sessions.Default(c)
	guestID, _ := sess.Get(sessionCartKey).(string)

	sess.Set(sessionCustomerKey, cust.ID)
	sess.Delete(sessionCartKey)
	if err := sess.Save(); err != nil {
		return err
	}

	if guestID != "" && s.carts != nil {
		if err := s.carts.Merge(c.Request.Context(), cart.GuestOwner(guestID), cart.UserOwner(cust.ID)); err != nil {
			s.log.Warn("guest cart merge failed", zap.Uint("customer_id", cust.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) loadSessionCustomer(c *gin.Context) (*models.Customer, bool) {
	sess := sessions.Default(c)
	custID, ok := sess.Get(sessionCustomerKey).(uint)
	if !ok || custID == 0 {
		return nil, false
	}
	var cust models.Customer
	if err := s.db.WithContext(c.Request.Context()).First(&cust, custID).Error; err != nil {
		return nil, false
	}
	return &cust, true
}

// RequireAuth ensures the user is logged in and injects *models.Customer into
// the context.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if custID, ok := sess.Get(sessionCustomerKey).(uint); !ok || custID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		cust, ok := s.loadSessionCustomer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.Set(contextCustomerKey, cust)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (s *Service) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentCustomer(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// OptionalAuth injects the customer when the session has one and lets guests
// through.
func (s *Service) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cust, ok := s.loadSessionCustomer(c); ok {
			c.Set(contextCustomerKey, cust)
		}
		c.Next()
	}
}

// CurrentCustomer returns the customer set by the auth middleware, or nil.
func CurrentCustomer(c *gin.Context) *models.Customer {
	v, ok := c.Get(contextCustomerKey)
	if !ok {
		return nil
	}
	cust, _ := v.(*models.Customer)
	return cust
}

// CartOwner identifies the cart for this request: the signed-in customer's, or
// a guest cart keyed by an ID kept in the session.
func CartOwner(c *gin.Context) (cart.Owner, error) {
	if cust := CurrentCustomer(c); cust != nil {
		return cart.UserOwner(cust.ID), nil
	}
	sess := sessions.Default(c)
	id, _ := sess.Get(sessionCartKey).(string)
	if id == "" {
		id = uuid.NewString()
		sess.Set(sessionCartKey, id)
		if err := sess.Save(); err != nil {
			return "", errors.Wrap(err, "save guest cart id")
		}
	}
	return cart.GuestOwner(id), nil
}
