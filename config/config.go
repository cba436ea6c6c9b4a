package config

import (
	"errors"
	"time"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	Mode    string `conf:"default:production"`
	Web     Web
	DB      DB
	Cors    Cors
	Payment Payment
	Stripe  Stripe
	Paypal  Paypal
	Clerk   Clerk
	Media   Media
	Redis   Redis
	Rate    Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:5001"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:edemy"`
	MaxIdleConns int    `conf:"default:0"`
	MaxOpenConns int    `conf:"default:0"`
	DisableTLS   bool   `conf:"default:true"`
}

type Cors struct {
	Origin string
}

type Payment struct {
	Currency    string `conf:"default:usd"`
	SkipPayment bool   `conf:"default:false"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string `conf:"default:http://localhost:5173/loading/my-enrollments"`
	CancelURL     string `conf:"default:http://localhost:5173/course/{courseId}"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api-m.sandbox.paypal.com"`
}

type Clerk struct {
	Issuer        string
	JWKSURL       string
	WebhookSecret string `conf:"mask"`
	SecretKey     string `conf:"mask"`
	APIURL        string
}

type Media struct {
	Bucket          string
	CDNDomain       string
	CredentialsFile string
}

type Redis struct {
	Addr     string
	Password string `conf:"mask"`
	DB       int    `conf:"default:0"`
}

type Rate struct {
	Burst  int           `conf:"default:5"`
	Every  time.Duration `conf:"default:2s"`
	Expiry int           `conf:"default:10"`
}

// Validate rejects combinations that must never reach a running server.
func (c Config) Validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return errors.New("mode must be either development or production")
	}
	if c.Mode == ModeProduction && c.Payment.SkipPayment {
		return errors.New("payment bypass cannot be enabled in production mode")
	}
	return nil
}

// BypassPayment reports whether checkout may skip the payment provider.
func (c Config) BypassPayment() bool {
	return c.Mode == ModeDevelopment && c.Payment.SkipPayment
}
