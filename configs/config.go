package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr          string `yaml:"addr" validate:"required"`
	SessionSecret string `yaml:"session_secret" validate:"required"`
	// CheckoutRate is checkouts per second allowed from one client; 0 disables
	// the limit.
	CheckoutRate  float64 `yaml:"checkout_rate" validate:"gte=0"`
	CheckoutBurst int     `yaml:"checkout_burst" validate:"gte=0"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"oneof=postgres mysql sqlite"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" validate:"required"`
	TimeZone string `yaml:"timezone"`
	MaxConns int    `yaml:"max_conns" validate:"gte=0"`
	Debug    bool   `yaml:"debug"`
}

type LoggerConfig struct {
	Mode       string `yaml:"mode"` // production or development
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

type OIDCConfig struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type AfricaTalkingConfig struct {
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
	SMSURL   string `yaml:"sms_url"`
	SenderID string `yaml:"sender_id"`
}

type EmailConfig struct {
	Provider           string `yaml:"provider" validate:"omitempty,oneof=ses smtp"`
	SMTPHost           string `yaml:"smtp_host" validate:"required_if=Provider smtp"`
	SMTPPort           int    `yaml:"smtp_port"`
	SMTPUser           string `yaml:"smtp_user"`
	SMTPPassword       string `yaml:"smtp_password"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSRegion          string `yaml:"aws_region"`
	SenderEmail        string `yaml:"sender_email"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type ShopConfig struct {
	Currency          string             `yaml:"currency"`
	CartBackend       string             `yaml:"cart_backend" validate:"oneof=db redis"`
	LowStockThreshold int                `yaml:"low_stock_threshold" validate:"gte=0"`
	LowStockSchedule  string             `yaml:"low_stock_schedule"`
	ShippingFees      map[string]float64 `yaml:"shipping_fees"`
	AdminEmails       []string           `yaml:"admin_emails"`
	NodeID            int64              `yaml:"node_id" validate:"gte=0,lte=1023"`
}

type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Database DatabaseConfig      `yaml:"database"`
	Logger   LoggerConfig        `yaml:"logger"`
	OIDC     OIDCConfig          `yaml:"oidc"`
	SMS      AfricaTalkingConfig `yaml:"sms"`
	Email    EmailConfig         `yaml:"email"`
	Redis    RedisConfig         `yaml:"redis"`
	AMQP     AMQPConfig          `yaml:"amqp"`
	Shop     ShopConfig          `yaml:"shop"`
}

// Default returns the configuration used when no file is supplied.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Addr: ":8080", SessionSecret: "change-me", CheckoutRate: 1, CheckoutBurst: 5},
		Database: DatabaseConfig{
			Type:     "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "test",
			Password: "test",
			Name:     "test",
			TimeZone: "Africa/Nairobi",
			MaxConns: 25,
		},
		Logger: LoggerConfig{Mode: "development", Filename: "storefront.log"},
		SMS: AfricaTalkingConfig{
			SMSURL:   "https://api.sandbox.africastalking.com/version1/messaging",
			SenderID: "AFRICASTKNG",
		},
		Email: EmailConfig{Provider: "ses", AWSRegion: "us-east-1", SMTPPort: 587},
		Redis: RedisConfig{Addr: "localhost:6379"},
		AMQP:  AMQPConfig{Exchange: "storefront_events"},
		Shop: ShopConfig{
			Currency:          "KES",
			CartBackend:       "db",
			LowStockThreshold: 3,
			LowStockSchedule:  "@every 1h",
			ShippingFees: map[string]float64{
				"standard": 3.00,
				"express":  10.00,
				"pickup":   0,
			},
			NodeID: 1,
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults and then applies
// environment overrides.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints declared in the struct tags.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Addr = getEnvOrDefault("HTTP_ADDR", cfg.Server.Addr)
	cfg.Server.SessionSecret = getEnvOrDefault("SESSION_SECRET", cfg.Server.SessionSecret)
	cfg.Server.CheckoutRate = cast.ToFloat64(getEnvOrDefault("CHECKOUT_RATE", cast.ToString(cfg.Server.CheckoutRate)))
	cfg.Server.CheckoutBurst = cast.ToInt(getEnvOrDefault("CHECKOUT_BURST", cast.ToString(cfg.Server.CheckoutBurst)))

	cfg.Database.Type = getEnvOrDefault("DB_TYPE", cfg.Database.Type)
	cfg.Database.Host = getEnvOrDefault("POSTGRES_HOST", cfg.Database.Host)
	cfg.Database.User = getEnvOrDefault("POSTGRES_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnvOrDefault("POSTGRES_DB", cfg.Database.Name)
	cfg.Database.Port = getEnvOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.MaxConns = cast.ToInt(getEnvOrDefault("DB_MAX_CONNS", cast.ToString(cfg.Database.MaxConns)))
	cfg.Database.Debug = cast.ToBool(getEnvOrDefault("DB_DEBUG", cast.ToString(cfg.Database.Debug)))

	cfg.Logger.Mode = getEnvOrDefault("LOG_MODE", cfg.Logger.Mode)
	cfg.Logger.FileEnable = cast.ToBool(getEnvOrDefault("LOG_FILE_ENABLE", cast.ToString(cfg.Logger.FileEnable)))
	cfg.Logger.Filename = getEnvOrDefault("LOG_FILE", cfg.Logger.Filename)

	cfg.OIDC.Issuer = getEnvOrDefault("OIDC_ISSUER", cfg.OIDC.Issuer)
	cfg.OIDC.ClientID = getEnvOrDefault("OIDC_CLIENT_ID", cfg.OIDC.ClientID)
	cfg.OIDC.ClientSecret = getEnvOrDefault("OIDC_CLIENT_SECRET", cfg.OIDC.ClientSecret)
	cfg.OIDC.RedirectURL = getEnvOrDefault("OIDC_REDIRECT_URL", cfg.OIDC.RedirectURL)

	cfg.SMS.Username = getEnvOrDefault("AT_USERNAME", cfg.SMS.Username)
	cfg.SMS.APIKey = getEnvOrDefault("AT_API_KEY", cfg.SMS.APIKey)
	cfg.SMS.SMSURL = getEnvOrDefault("AT_SMS_URL", cfg.SMS.SMSURL)
	cfg.SMS.SenderID = getEnvOrDefault("AT_SENDER_ID", cfg.SMS.SenderID)

	cfg.Email.Provider = getEnvOrDefault("EMAIL_PROVIDER", cfg.Email.Provider)
	cfg.Email.SMTPHost = getEnvOrDefault("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = cast.ToInt(getEnvOrDefault("SMTP_PORT", cast.ToString(cfg.Email.SMTPPort)))
	cfg.Email.SMTPUser = getEnvOrDefault("SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = getEnvOrDefault("SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Email.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", cfg.Email.AWSAccessKeyID)
	cfg.Email.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", cfg.Email.AWSSecretAccessKey)
	cfg.Email.AWSRegion = getEnvOrDefault("AWS_REGION", cfg.Email.AWSRegion)
	cfg.Email.SenderEmail = getEnvOrDefault("AWS_SENDER_ADDRESS", cfg.Email.SenderEmail)

	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = cast.ToInt(getEnvOrDefault("REDIS_DB", cast.ToString(cfg.Redis.DB)))

	cfg.AMQP.URL = getEnvOrDefault("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getEnvOrDefault("AMQP_EXCHANGE", cfg.AMQP.Exchange)

	cfg.Shop.Currency = getEnvOrDefault("SHOP_CURRENCY", cfg.Shop.Currency)
	cfg.Shop.CartBackend = getEnvOrDefault("CART_BACKEND", cfg.Shop.CartBackend)
	cfg.Shop.LowStockThreshold = cast.ToInt(getEnvOrDefault("LOW_STOCK_THRESHOLD", cast.ToString(cfg.Shop.LowStockThreshold)))
	cfg.Shop.LowStockSchedule = getEnvOrDefault("LOW_STOCK_SCHEDULE", cfg.Shop.LowStockSchedule)
	cfg.Shop.NodeID = cast.ToInt64(getEnvOrDefault("NODE_ID", cast.ToString(cfg.Shop.NodeID)))
	if v, ok := os.LookupEnv("ADMIN_EMAILS"); ok {
		cfg.Shop.AdminEmails = splitList(v)
	}
}

// ShippingFee returns the fee for the given shipping method.
func (s ShopConfig) ShippingFee(method string) (decimal.Decimal, bool) {
	fee, ok := s.ShippingFees[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(fee).Round(2), true
}

// IsAdminEmail reports whether email is configured as an administrator.
func (s ShopConfig) IsAdminEmail(email string) bool {
	for _, e := range s.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
