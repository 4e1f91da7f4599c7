// Command authgate runs the authentication gateway: local email/password
// signup plus federated login via Google, GitHub, Twitter, Facebook and
// LinkedIn, all funneled into one session store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/soumyab/authgate"
	"github.com/soumyab/authgate/media"
	authoauth2 "github.com/soumyab/authgate/oauth2"
	gormstore "github.com/soumyab/authgate/stores/gorm"
)

type providerConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

type config struct {
	Addr        string        `env:"AUTHGATE_ADDR" envDefault:":8080"`
	DBPath      string        `env:"AUTHGATE_DB" envDefault:"authgate.db"`
	JWTSecret   string        `env:"AUTHGATE_JWT_SECRET"`
	Issuer      string        `env:"AUTHGATE_ISSUER" envDefault:"authgate"`
	SessionTTL  time.Duration `env:"AUTHGATE_SESSION_TTL" envDefault:"168h"`
	RedirectURL string        `env:"AUTHGATE_REDIRECT_URL" envDefault:"/"`
	FailureURL  string        `env:"AUTHGATE_FAILURE_URL" envDefault:"/auth/failure"`

	SMTPAddr     string `env:"AUTHGATE_SMTP_ADDR"`
	SMTPFrom     string `env:"AUTHGATE_SMTP_FROM"`
	SMTPUser     string `env:"AUTHGATE_SMTP_USER"`
	SMTPPassword string `env:"AUTHGATE_SMTP_PASSWORD"`

	S3Region    string `env:"AUTHGATE_S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"AUTHGATE_S3_BUCKET"`
	S3AccessKey string `env:"AUTHGATE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"AUTHGATE_S3_SECRET_KEY"`
	S3Endpoint  string `env:"AUTHGATE_S3_ENDPOINT"`
	S3PublicURL string `env:"AUTHGATE_S3_PUBLIC_URL"`

	Google   providerConfig `envPrefix:"GOOGLE_"`
	Github   providerConfig `envPrefix:"GITHUB_"`
	Twitter  providerConfig `envPrefix:"TWITTER_"`
	Facebook providerConfig `envPrefix:"FACEBOOK_"`
	Linkedin providerConfig `envPrefix:"LINKEDIN_"`
}

func (c config) federation() authgate.FederationConfig {
	fc := authgate.FederationConfig{}
	for name, pc := range map[string]providerConfig{
		"google":   c.Google,
		"github":   c.Github,
		"twitter":  c.Twitter,
		"facebook": c.Facebook,
		"linkedin": c.Linkedin,
	} {
		fc[name] = authgate.ProviderCredentials{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			CallbackURL:  pc.CallbackURL,
		}
	}
	return fc
}

func main() {
	diagnose := flag.Bool("diagnose", false, "probe configured identity providers and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger, *diagnose); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, diagnose bool) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return err
	}

	sessionStore := gormstore.NewSessionStore(db)
	defer sessionStore.StopCleanup()

	session := scs.New()
	session.Store = sessionStore
	session.Lifetime = cfg.SessionTTL
	session.Cookie.HttpOnly = true

	issuer, err := authgate.NewTokenIssuer(cfg.JWTSecret, cfg.Issuer)
	if err != nil {
		return err
	}

	lc := &authgate.Lifecycle{
		Store:    gormstore.NewPrincipalStore(db),
		Hasher:   authgate.NewBcryptHasher(0),
		Notifier: notifier(cfg, logger),
		Issuer:   issuer,
		Session:  session,
		Logger:   logger,
	}
	if cfg.S3Bucket != "" {
		uploader, err := media.New(ctx, media.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
		lc.Uploader = uploader
	}

	gateway := authgate.NewGateway(lc, session)
	gateway.RedirectURL = cfg.RedirectURL
	gateway.FailureURL = cfg.FailureURL
	gateway.Logger = logger

	providers := buildProviders(cfg.federation(), gateway)
	for name, p := range providers {
		p.FailureURL = cfg.FailureURL
		gateway.AddProvider(name, p)
		logger.Info("federation provider enabled", "provider", name)
	}

	if diagnose {
		return diagnoseProviders(ctx, logger, providers)
	}

	logger.Info("listening", "addr", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, gateway.Handler())
}

func buildProviders(fc authgate.FederationConfig, gateway *authgate.Gateway) map[string]*authoauth2.Provider {
	constructors := map[string]func(authgate.ProviderCredentials, authgate.FederatedLoginFunc) *authoauth2.Provider{
		"google":   authoauth2.NewGoogle,
		"github":   authoauth2.NewGithub,
		"twitter":  authoauth2.NewTwitter,
		"facebook": authoauth2.NewFacebook,
		"linkedin": authoauth2.NewLinkedin,
	}
	providers := map[string]*authoauth2.Provider{}
	for name, construct := range constructors {
		if fc.Configured(name) {
			providers[name] = construct(fc[name], gateway.CompleteFederatedLogin)
		}
	}
	return providers
}

func diagnoseProviders(ctx context.Context, logger *slog.Logger, providers map[string]*authoauth2.Provider) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var failed bool
	for name, p := range providers {
		if err := p.Diagnose(ctx); err != nil {
			logger.Error("provider unreachable", "provider", name, "err", err)
			failed = true
			continue
		}
		logger.Info("provider reachable", "provider", name)
	}
	if failed {
		return fmt.Errorf("one or more providers unreachable")
	}
	return nil
}

func notifier(cfg config, logger *slog.Logger) authgate.NotificationSender {
	if cfg.SMTPAddr == "" {
		logger.Warn("no SMTP configured, verification codes will be logged")
		return &authgate.ConsoleSender{}
	}
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		host := cfg.SMTPAddr
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, host)
	}
	return &authgate.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom, Auth: auth}
}
