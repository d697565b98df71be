package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/catalog"
)

const catalogTimeout = 15 * time.Second

// MicroApps proxies the catalog listing. Launch tokens stay on the host.
// The handler is plain net/http so gzhttp can compress it.
func (h *Handlers) MicroApps() http.Handler {
	return gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), catalogTimeout)
		defer cancel()

		apps, err := h.catalog.ListMicroApps(ctx)
		if err != nil {
			h.logger.Warn("catalog listing failed", zap.Error(err))
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}

		public := make([]catalog.MicroApp, len(apps))
		for i, app := range apps {
			app.Token = ""
			public[i] = app
		}
		writeJSON(w, http.StatusOK, map[string]any{"microApps": public})
	}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
