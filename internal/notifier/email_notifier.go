package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/events"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// SESClient is the part of the SES API the mailer calls.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESMailer struct {
	client SESClient
	sender string
	log    *zap.Logger
}

func NewSESMailer(ctx context.Context, cfg config.EmailConfig, log *zap.Logger) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS SDK config")
	}
	return NewSESMailerWithClient(ses.NewFromConfig(awsCfg), cfg.SenderEmail, log), nil
}

func NewSESMailerWithClient(client SESClient, sender string, log *zap.Logger) *SESMailer {
	return &SESMailer{client: client, sender: sender, log: log}
}

func (m *SESMailer) Send(ctx context.Context, msg Email) error {
	if m.sender == "" {
		return errors.New("sender email address is not configured")
	}
	if msg.To == "" {
		return errors.New("recipient email address is empty")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.sender),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(msg.Subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(msg.HTML),
				},
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(msg.Text),
				},
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return errors.Wrapf(err, "failed to send email to %s", msg.To)
	}
	m.log.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	sender string
	log    *zap.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		sender: cfg.SenderEmail,
		log:    log,
	}
}

func (m *SMTPMailer) Send(_ context.Context, msg Email) error {
	if msg.To == "" {
		return errors.New("recipient email address is empty")
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.sender)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	gm.AddAlternative("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return errors.Wrapf(err, "failed to send email to %s", msg.To)
	}
	m.log.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// NewMailer picks the delivery backend named by cfg.Provider.
func NewMailer(ctx context.Context, cfg config.EmailConfig, log *zap.Logger) (Mailer, error) {
	if cfg.Provider == "smtp" {
		return NewSMTPMailer(cfg, log), nil
	}
	return NewSESMailer(ctx, cfg, log)
}

func OrderConfirmationEmail(e events.OrderPlaced, currency string) Email {
	total := e.Total.StringFixed(2)
	return Email{
		To:      e.CustomerEmail,
		Subject: fmt.Sprintf("Order #%s Confirmation - Thank You for Your Purchase!", e.Number),
		HTML: fmt.Sprintf(`
        <html>
        <body>
            <p>Dear %s,</p>
            <p>Thank you for your order! Your order #%s has been successfully placed.</p>
            <p><strong>Order Details:</strong></p>
            <ul>
                <li>Order number: %s</li>
                <li>Items: %d</li>
                <li>Total Amount: %s %s</li>
            </ul>
            <p>We'll send you another email when your order ships.</p>
            <p>Best regards,</p>
            <p>The Storefront Team</p>
        </body>
        </html>`, e.CustomerName, e.Number, e.Number, e.ItemCount, currency, total),
		Text: fmt.Sprintf(
			"Dear %s,\n\nThank you for your order! Your order #%s has been successfully placed.\n\n"+
				"Order Details:\nOrder number: %s\nItems: %d\nTotal Amount: %s %s\n\n"+
				"We'll send you another email when your order ships.\n\nBest regards,\nThe Storefront Team",
			e.CustomerName, e.Number, e.Number, e.ItemCount, currency, total),
	}
}

func LowStockEmail(to string, e events.StockLow) Email {
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Low stock: %s", e.ProductName),
		HTML: fmt.Sprintf(`
        <html>
        <body>
            <p>%s is running low.</p>
            <ul>
                <li>Product ID: %d</li>
                <li>Units left: %d</li>
                <li>Alert threshold: %d</li>
            </ul>
        </body>
        </html>`, e.ProductName, e.ProductID, e.Stock, e.Threshold),
		Text: fmt.Sprintf("%s is running low.\nProduct ID: %d\nUnits left: %d\nAlert threshold: %d\n",
			e.ProductName, e.ProductID, e.Stock, e.Threshold),
	}
}
