package http

import (
	"net/http"
)

type RouterConfig struct {
	Rules *RuleHandler
	Weeks *WeekHandler
	// Authenticate guards every route except the health check.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Rules != nil {
		api.HandleFunc("POST /rules", cfg.Rules.Create)
		api.HandleFunc("GET /rules", cfg.Rules.List)
		api.HandleFunc("DELETE /rules/{id}", cfg.Rules.Delete)
		api.HandleFunc("PUT /rules/{id}/occurrences/{date}", cfg.Rules.UpdateOccurrence)
		api.HandleFunc("DELETE /rules/{id}/occurrences/{date}", cfg.Rules.DeleteOccurrence)
	}

	if cfg.Weeks != nil {
		api.HandleFunc("GET /weeks/{date}", cfg.Weeks.Get)
		api.HandleFunc("GET /weeks/{date}/calendar.ics", cfg.Weeks.Calendar)
	}

	var protected http.Handler = api
	if cfg.Authenticate != nil {
		protected = cfg.Authenticate(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		newResponder(nil).writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/", protected)

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
