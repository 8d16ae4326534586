package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Handler *handler.Handler
	Metrics *metric.Registry
	Logger  *slog.Logger

	// AdminKey guards /admin routes. Empty disables them.
	AdminKey string

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// MetricsRequireAuth puts /metrics behind the admin key.
	MetricsRequireAuth bool

	// CORSAllowedOrigins lists origins the invitation page is served from.
	CORSAllowedOrigins []string

	// GlobalRPS and GlobalBurst throttle the whole server.
	GlobalRPS   float64
	GlobalBurst int

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	h := cfg.Handler

	route := func(r *http.Request) string {
		if r.URL.Path == "/metrics" {
			return "GET /metrics"
		}
		return h.Route(r)
	}

	// Order: Recover -> RequestID -> AccessLog -> Throttle -> MaxBody -> route specific
	common := []Middleware{
		Recover(lg),
		RequestID(),
		AccessLog(lg, cfg.Metrics, route),
		Throttle(cfg.GlobalRPS, cfg.GlobalBurst),
		MaxBody(cfg.MaxBodyBytes),
	}

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(),
		append(common, MetricsAuth(cfg.AdminKey, cfg.MetricsRequireAuth, lg))...))

	mux.Handle("/admin/", Chain(h,
		append(common,
			NetworkACL(cfg.AdminAllowList, lg),
			AdminAuth(cfg.AdminKey, lg),
		)...))

	mux.Handle("/", Chain(h, append(common, CORS(cfg.CORSAllowedOrigins))...))

	return mux
}
