package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/handlers"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/notifier"
	"github.com/Keoroanthony/go-storefront/internal/orders"
	"github.com/Keoroanthony/go-storefront/internal/reports"
	"github.com/Keoroanthony/go-storefront/internal/reviews"
	"github.com/Keoroanthony/go-storefront/internal/sales"
	"github.com/Keoroanthony/go-storefront/internal/testutil"
)

const testSecret = "test-secret-key"

type testApp struct {
	router  *gin.Engine
	db      *gorm.DB
	catalog *catalog.Store
	orders  *orders.Service
}

func setupTestRouter(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB := testutil.OpenDB(t)
	log := zap.NewNop()
	shop := config.Default().Shop

	store := catalog.NewStore(testDB)
	holder := cart.NewGormHolder(testDB)
	carts := cart.NewService(holder, store)

	orderSvc, err := orders.NewService(testDB, store, holder, shop, events.Nop{}, log)
	require.NoError(t, err)

	h := &handlers.Handler{
		Catalog:           store,
		Carts:             carts,
		Orders:            orderSvc,
		Sales:             sales.NewStore(testDB),
		Reports:           reports.NewService(testDB),
		Reviews:           reviews.NewService(testDB, events.Nop{}),
		Notifications:     notifier.NewStore(testDB),
		Auth:              auth.New(testDB, shop, carts, log),
		Log:               log,
		LowStockThreshold: shop.LowStockThreshold,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sessions.Sessions(auth.SessionName, cookie.NewStore([]byte(testSecret))))
	h.Register(r)

	return &testApp{router: r, db: testDB, catalog: store, orders: orderSvc}
}

func newRequest(method, path string, body interface{}) *http.Request {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// sessionCookies builds a signed session cookie the way the session
// middleware would after login.
func sessionCookies(customerID uint) []*http.Cookie {
	tempW := httptest.NewRecorder()
	tempC, _ := gin.CreateTestContext(tempW)
	tempC.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	sessions.Sessions(auth.SessionName, cookie.NewStore([]byte(testSecret)))(tempC)

	session := sessions.Default(tempC)
	session.Set("customer_id", customerID)
	_ = session.Save()

	return tempW.Result().Cookies()
}

// client carries cookies between requests like a browser would.
type client struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) guest() *client {
	return &client{app: a, cookies: map[string]*http.Cookie{}}
}

func (a *testApp) as(customerID uint) *client {
	c := a.guest()
	for _, ck := range sessionCookies(customerID) {
		c.cookies[ck.Name] = ck
	}
	return c
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	req := newRequest(method, path, body)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	recorder := httptest.NewRecorder()
	c.app.router.ServeHTTP(recorder, req)
	for _, ck := range recorder.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return recorder
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into), w.Body.String())
}

func (a *testApp) customer(t *testing.T, name, email, role string) *models.Customer {
	t.Helper()
	cust := models.Customer{Name: name, Email: email, Phone: "0700000000", OIDCID: "sub-" + email, Role: role}
	require.NoError(t, a.db.Create(&cust).Error)
	return &cust
}

func (a *testApp) product(t *testing.T, name, price, cost string, stock int) *models.Product {
	t.Helper()
	p, err := a.catalog.Create(context.Background(), catalog.ProductInput{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		CostPrice:   decimal.RequireFromString(cost),
		Stock:       stock,
	})
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func checkoutBody() gin.H {
	return gin.H{
		"name":            "Jane Doe",
		"email":           "jane@example.com",
		"phone":           "+254700000000",
		"address":         "1 Market St",
		"city":            "Nairobi",
		"shipping_method": "standard",
		"payment_method":  "cod",
	}
}
