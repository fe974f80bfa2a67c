package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMIND_"

type Application struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"db"`
	Log       Log       `koanf:"log"`
	Auth      Auth      `koanf:"auth"`
	RateLimit RateLimit `koanf:"ratelimit"`
	Push      Push      `koanf:"push"`
	Email     Email     `koanf:"email"`
	SMS       SMS       `koanf:"sms"`
	Stripe    Stripe    `koanf:"stripe"`
	Voice     Voice     `koanf:"voice"`
	Backup    Backup    `koanf:"backup"`
	Scheduler Scheduler `koanf:"scheduler"`
}

type Server struct {
	Port    string `koanf:"port"`
	BaseURL string `koanf:"baseurl"`
	// TrustProxyHeaders takes the client address from CF-Connecting-IP or
	// X-Forwarded-For. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `koanf:"trustproxyheaders"`
}

type Database struct {
	Path string `koanf:"path"`
}

type Log struct {
	Level string `koanf:"level"`
}

type Auth struct {
	JWTSecret    string        `koanf:"jwtsecret"`
	TokenTTL     time.Duration `koanf:"tokenttl"`
	CookieSecure bool          `koanf:"cookiesecure"`
}

type RateLimit struct {
	// Backend is "memory" (per process) or "sqlite" (shared by every
	// process on the same database).
	Backend     string        `koanf:"backend"`
	LoginLimit  int           `koanf:"loginlimit"`
	VoiceLimit  int           `koanf:"voicelimit"`
	NotifyLimit int           `koanf:"notifylimit"`
	Window      time.Duration `koanf:"window"`
}

type Push struct {
	VAPIDPublicKey  string `koanf:"vapidpublickey"`
	VAPIDPrivateKey string `koanf:"vapidprivatekey"`
	Subject         string `koanf:"subject"`
}

type Email struct {
	PostmarkToken string `koanf:"postmarktoken"`
	From          string `koanf:"from"`
}

type SMS struct {
	AccountSID string `koanf:"accountsid"`
	AuthToken  string `koanf:"authtoken"`
	From       string `koanf:"from"`
}

type Stripe struct {
	SecretKey     string `koanf:"secretkey"`
	WebhookSecret string `koanf:"webhooksecret"`
	PriceID       string `koanf:"priceid"`
}

type Voice struct {
	Triggers []string `koanf:"triggers"`
}

type Backup struct {
	S3Endpoint  string        `koanf:"s3endpoint"`
	S3Bucket    string        `koanf:"s3bucket"`
	S3Region    string        `koanf:"s3region"`
	S3AccessKey string        `koanf:"s3accesskey"`
	S3SecretKey string        `koanf:"s3secretkey"`
	Passphrase  string        `koanf:"passphrase"`
	Interval    time.Duration `koanf:"interval"`
	Retention   time.Duration `koanf:"retention"`
}

type Scheduler struct {
	Interval time.Duration `koanf:"interval"`
}

// Defaults returns the configuration used before any file or environment
// overrides are applied.
func Defaults() Application {
	return Application{
		Server:   Server{Port: "8080", BaseURL: "http://localhost:8080"},
		Database: Database{Path: "remind.db"},
		Log:      Log{Level: "info"},
		Auth:     Auth{TokenTTL: 7 * 24 * time.Hour},
		RateLimit: RateLimit{
			Backend:     "memory",
			LoginLimit:  5,
			VoiceLimit:  30,
			NotifyLimit: 20,
			Window:      time.Minute,
		},
		Push:      Push{Subject: "mailto:admin@remind.local"},
		Voice:     Voice{Triggers: []string{"hey wanda", "ok wanda"}},
		Backup:    Backup{S3Region: "us-east-1", Interval: 24 * time.Hour, Retention: 30 * 24 * time.Hour},
		Scheduler: Scheduler{Interval: 30 * time.Second},
	}
}

// Load layers struct defaults, the optional YAML file at path, and REMIND_*
// environment variables, in that order.
func Load(path string) (Application, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Application{}, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Application{}, fmt.Errorf("load config file %s: %w", path, err)
		}
		slog.Info("config file not found, using defaults and environment", "path", path)
	} else {
		slog.Info("loaded configuration from file", "path", path)
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			if k == "voice.triggers" {
				return k, splitList(v)
			}
			return k, v
		},
	}), nil)
	if err != nil {
		return Application{}, fmt.Errorf("load env: %w", err)
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return app, app.Validate()
}

// Validate rejects settings that would leave the server unusable.
func (a Application) Validate() error {
	if a.Auth.JWTSecret == "" {
		return errors.New("auth.jwtsecret is required (REMIND_AUTH_JWTSECRET)")
	}
	switch a.RateLimit.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("ratelimit.backend must be memory or sqlite, got %q", a.RateLimit.Backend)
	}
	return nil
}

// PushConfigured reports whether VAPID keys are set.
func (a Application) PushConfigured() bool {
	return a.Push.VAPIDPublicKey != "" && a.Push.VAPIDPrivateKey != ""
}

// BackupConfigured reports whether scheduled backups can run.
func (a Application) BackupConfigured() bool {
	return a.Backup.S3Bucket != "" && a.Backup.S3AccessKey != "" && a.Backup.S3SecretKey != "" && a.Backup.Passphrase != ""
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
