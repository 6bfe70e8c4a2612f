package http

import (
	"net"
	"net/http"
	"time"
)

// NewClient создаёт исходящий клиент с отдельными таймаутами соединения и чтения.
// readTimeout ограничивает ожидание заголовков и весь обмен.
func NewClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}
