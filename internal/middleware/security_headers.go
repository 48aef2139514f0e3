package middleware

import (
	"net/http"
	"strings"
)

// apiSecurityHeaders はJSON APIの全レスポンスに付与するヘッダー。
// 受信箱の内容はユーザー固有のためキャッシュさせない。
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// WebSocketのハンドシェイクには101応答に不要なためCSPを付けない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upgrade := isWebSocketUpgrade(r)
			for k, v := range apiSecurityHeaders {
				if upgrade && k == "Content-Security-Policy" {
					continue
				}
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isWebSocketUpgrade はリクエストがWebSocketへのUpgrade要求かを判定する。
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		headerContainsToken(r.Header.Get("Connection"), "upgrade")
}

func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
