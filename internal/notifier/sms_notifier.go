package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/events"
)

type SMSResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Cost       string `json:"cost"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// AfricasTalking sends SMS through the Africa's Talking messaging API.
type AfricasTalking struct {
	cfg     config.AfricaTalkingConfig
	timeout time.Duration
	log     *zap.Logger
}

func NewAfricasTalking(cfg config.AfricaTalkingConfig, log *zap.Logger) *AfricasTalking {
	return &AfricasTalking{cfg: cfg, timeout: 10 * time.Second, log: log}
}

func (a *AfricasTalking) Send(ctx context.Context, to, message string) error {
	if to == "" {
		return errors.New("recipient phone number is empty")
	}

	var (
		smsResp SMSResponse
		code    int
	)
	err := gout.POST(a.cfg.SMSURL).
		WithContext(ctx).
		SetTimeout(a.timeout).
		SetHeader(gout.H{
			"Accept": "application/json",
			"apikey": a.cfg.APIKey,
		}).
		SetWWWForm(gout.H{
			"username": a.cfg.Username,
			"to":       to,
			"message":  message,
			"from":     a.cfg.SenderID,
		}).
		BindJSON(&smsResp).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrapf(err, "SMS send to %s failed", to)
	}
	if code != http.StatusCreated && code != http.StatusOK {
		return errors.Errorf("SMS API returned non-success status %d: %s", code, smsResp.SMSMessageData.Message)
	}

	a.log.Info("SMS sent", zap.String("to", to), zap.String("message", smsResp.SMSMessageData.Message))
	return nil
}

func OrderConfirmationSMS(e events.OrderPlaced, currency string) string {
	return fmt.Sprintf("Your order #%s has been successfully placed! Total: %s %s. Thank you for shopping with us!",
		e.Number, currency, e.Total.StringFixed(2))
}
