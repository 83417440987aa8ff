// Package util provides helpers shared by the server: proxy-aware HTTP transports and
// redaction of secrets before they reach the logs.
package util

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SetProxy configures client to route through proxyURL. http and https proxies use the standard
// transport proxy hook; socks5 proxies dial through golang.org/x/net/proxy. An empty or invalid
// proxyURL leaves the client's transport untouched.
func SetProxy(proxyURL string, client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	if proxyURL == "" {
		return client
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		log.Errorf("parse proxy URL failed: %v", err)
		return client
	}

	transport := baseTransport(client)
	switch u.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, errSOCKS := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if errSOCKS != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errSOCKS)
			return client
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		log.Errorf("unsupported proxy scheme %q", u.Scheme)
		return client
	}

	client.Transport = transport
	return client
}

// NewStreamingTransport returns a transport suited to long-lived streaming responses: no overall
// deadline, compression left to the upstream, and headerTimeout bounding dial and response headers.
func NewStreamingTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout
	if headerTimeout > 0 {
		t.DialContext = (&net.Dialer{Timeout: headerTimeout, KeepAlive: 30 * time.Second}).DialContext
		t.TLSHandshakeTimeout = headerTimeout
	}
	return t
}

func baseTransport(client *http.Client) *http.Transport {
	if t, ok := client.Transport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return http.DefaultTransport.(*http.Transport).Clone()
}
