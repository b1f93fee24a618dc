package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はストアへの疎通確認を行う。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthTimeout はヘルスチェック時のping上限。
const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthHandler はストアへのpingで稼働状態を返すハンドラーを生成する。
// GET /health → 200 {"status":"ok"} | 503 {"status":"unavailable"}
func NewHealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := pinger.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
