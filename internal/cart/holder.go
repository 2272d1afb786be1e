// Package cart keeps the per-session list of products a shopper intends to buy.
// Carts are not transactionally tied to stock until checkout.
package cart

import (
	"context"
	"fmt"
	"strings"
)

// Owner identifies whose cart it is: a signed-in user or a guest session.
type Owner string

func UserOwner(userID uint) Owner {
	return Owner(fmt.Sprintf("user:%d", userID))
}

func GuestOwner(sessionID string) Owner {
	return Owner("guest:" + sessionID)
}

func (o Owner) IsGuest() bool {
	return strings.HasPrefix(string(o), "guest:")
}

type Line struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// Holder stores cart lines. Implementations merge repeated adds of the same
// product into one line.
type Holder interface {
	Items(ctx context.Context, owner Owner) ([]Line, error)
	Add(ctx context.Context, owner Owner, productID uint, qty int) error
	Update(ctx context.Context, owner Owner, productID uint, qty int) error
	Remove(ctx context.Context, owner Owner, productID uint) error
	Clear(ctx context.Context, owner Owner) error
}
