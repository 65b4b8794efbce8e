package config

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"jwt-cookie-ws/internal/auth"
)

type Config struct {
	Addr         string
	DatabasePath string

	JWTSecret     string
	JWTIssuer     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	TokenLocation []string
	CSRFProtect   bool

	CookieSecure   bool
	CookieSameSite http.SameSite
	CookieDomain   string

	DenylistEnabled bool
	DenylistChecks  []string
	DenylistBackend string
	RedisAddr       string

	AppEnv                string
	WSAllowedOrigins      []string
	DevWebSocketsAllowAll bool
	WSAuthTimeout         time.Duration

	LogLevel  string
	LogFormat string

	WSRatePerMinute    int
	LoginRatePerMinute int

	// TrustedProxies lists the peers whose X-Forwarded-For is believed when
	// resolving the client IP. Empty means the socket peer address is used.
	TrustedProxies []string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:            os.Getenv("BACKEND_ADDR"),
		DatabasePath:    os.Getenv("DATABASE_PATH"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		AccessTTL:       envMinutes("JWT_ACCESS_TTL_MINUTES", 15),
		RefreshTTL:      envMinutes("JWT_REFRESH_TTL_MINUTES", 43200), // 30 days
		Leeway:          time.Duration(envInt("JWT_LEEWAY_SECONDS", 0)) * time.Second,
		TokenLocation:   envList("JWT_TOKEN_LOCATION", []string{auth.LocationCookies}),
		CSRFProtect:     envBool("JWT_COOKIE_CSRF_PROTECT", true),
		CookieDomain:    strings.TrimSpace(os.Getenv("JWT_COOKIE_DOMAIN")),
		DenylistEnabled: envBool("JWT_DENYLIST_ENABLED", false),
		DenylistChecks:  envList("JWT_DENYLIST_CHECKS", []string{string(auth.TypeAccess), string(auth.TypeRefresh)}),
		DenylistBackend: strings.ToLower(strings.TrimSpace(os.Getenv("DENYLIST_BACKEND"))),
		RedisAddr:       strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		AppEnv:          strings.TrimSpace(os.Getenv("APP_ENV")),
		WSAuthTimeout:   time.Duration(envInt("WS_AUTH_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:        strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFormat:       strings.TrimSpace(os.Getenv("LOG_FORMAT")),

		WSRatePerMinute:    envInt("RATELIMIT_WS_PER_MINUTE", 60),
		LoginRatePerMinute: envInt("RATELIMIT_LOGIN_PER_MINUTE", 10),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.DenylistBackend == "" {
		cfg.DenylistBackend = "sqlite"
	}
	// Secure cookies are off by default only in development (plain http on localhost).
	cfg.CookieSecure = envBool("JWT_COOKIE_SECURE", cfg.AppEnv != "development")

	var missing []string

	sameSite, ok := parseSameSite(os.Getenv("JWT_COOKIE_SAMESITE"))
	if !ok {
		missing = append(missing, "JWT_COOKIE_SAMESITE (lax|strict|none)")
	}
	cfg.CookieSameSite = sameSite

	cfg.WSAllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))
	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))
	for _, p := range cfg.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			missing = append(missing, fmt.Sprintf("TRUSTED_PROXIES (invalid address %q)", p))
		}
	}
	cfg.DevWebSocketsAllowAll = envBool("DEV_WEBSOCKETS_ALLOW_ALL", false)

	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.DatabasePath == "" {
		missing = append(missing, "DATABASE_PATH")
	}
	for _, loc := range cfg.TokenLocation {
		if loc != auth.LocationCookies && loc != auth.LocationHeaders {
			missing = append(missing, fmt.Sprintf("JWT_TOKEN_LOCATION (unknown location %q)", loc))
		}
	}
	for _, typ := range cfg.DenylistChecks {
		if typ != string(auth.TypeAccess) && typ != string(auth.TypeRefresh) {
			missing = append(missing, fmt.Sprintf("JWT_DENYLIST_CHECKS (unknown token type %q)", typ))
		}
	}
	switch cfg.DenylistBackend {
	case "sqlite":
	case "redis":
		if cfg.DenylistEnabled && cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		missing = append(missing, fmt.Sprintf("DENYLIST_BACKEND (unknown backend %q)", cfg.DenylistBackend))
	}
	// SameSite=None is rejected by browsers without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		missing = append(missing, "JWT_COOKIE_SECURE (required when JWT_COOKIE_SAMESITE=none)")
	}

	// BACKEND_ADDR is optional if PORT is set by the hosting environment.
	if cfg.Addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			// If PORT is a bare port, accept ":<port>". If it already includes host, keep it.
			if strings.Contains(port, ":") {
				cfg.Addr = port
			} else {
				cfg.Addr = ":" + port
			}
		}
	}
	if cfg.Addr == "" {
		missing = append(missing, "BACKEND_ADDR (or PORT)")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing/invalid env: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// Settings derives the read-only authorization settings shared by every connection.
func (c Config) Settings() auth.Settings {
	s := auth.DefaultSettings(c.JWTSecret)
	s.Issuer = c.JWTIssuer
	s.AccessTTL = c.AccessTTL
	s.RefreshTTL = c.RefreshTTL
	s.Leeway = c.Leeway
	s.TokenLocation = auth.NewLocationSet(c.TokenLocation...)
	s.CSRFProtect = c.CSRFProtect
	s.Cookies.Secure = c.CookieSecure
	s.Cookies.SameSite = c.CookieSameSite
	s.Cookies.Domain = c.CookieDomain
	s.DenylistEnabled = c.DenylistEnabled
	s.DenylistChecks = map[auth.TokenType]bool{}
	for _, typ := range c.DenylistChecks {
		s.DenylistChecks[auth.TokenType(typ)] = true
	}
	return s
}

func (c Config) IsDev() bool {
	return c.AppEnv == "development"
}

func envMinutes(key string, def int64) time.Duration {
	minutes := def
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			minutes = n
		} else {
			fmt.Fprintf(os.Stderr, "WARNING: invalid %s=%q, using default %d\n", key, v, def)
		}
	}
	return time.Duration(minutes) * time.Minute
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		fmt.Fprintf(os.Stderr, "WARNING: invalid %s=%q, using default %d\n", key, v, def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: invalid %s=%q, using default %t\n", key, v, def)
		return def
	}
	return b
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
