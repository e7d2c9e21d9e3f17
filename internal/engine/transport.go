package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const maxRedirects = 10

// NewHTTPClient builds the client shared by the probe and every transfer worker
// of one download. It honors the configured proxy (HTTP or SOCKS5) and TLS policy.
// No overall timeout is set: long transfers are bounded only by their context.
func NewHTTPClient(runtime *types.RuntimeConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   types.MaxSegments,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
		// Compressed bodies would break byte-offset arithmetic
		DisableCompression: true,
	}

	if proxyURL := runtime.GetProxyURL(); proxyURL != "" {
		if err := applyProxy(transport, proxyURL); err != nil {
			utils.Debug("Invalid proxy %s, falling back to environment: %v", proxyURL, err)
		}
	}

	if runtime.GetSkipTLSVerification() {
		utils.Debug("TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user opt-in
	}

	return &http.Client{
		Transport:     transport,
		CheckRedirect: preserveHeaders,
	}
}

func applyProxy(transport *http.Transport, rawProxy string) error {
	parsed, err := url.Parse(rawProxy)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return fmt.Errorf("proxy URL has no host")
	}

	if strings.HasPrefix(parsed.Scheme, "socks5") {
		var auth *proxy.Auth
		if parsed.User != nil {
			pass, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if err != nil {
			return err
		}
		utils.Debug("Using SOCKS5 proxy: %s", parsed.Host)
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return nil
	}

	utils.Debug("Using HTTP proxy: %s", parsed.Host)
	transport.Proxy = http.ProxyURL(parsed)
	return nil
}

// redirectHeaders survive every redirect. Credentials are left to net/http,
// which drops them when the target host changes.
var redirectHeaders = []string{"Range", "User-Agent", "Accept-Encoding"}

// preserveHeaders carries redirectHeaders from the original request onto
// redirects so ranged requests keep working across CDN hops.
func preserveHeaders(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if len(via) > 0 {
		for _, key := range redirectHeaders {
			if req.Header.Get(key) != "" {
				continue
			}
			if v := via[0].Header.Get(key); v != "" {
				req.Header.Set(key, v)
			}
		}
	}
	return nil
}

// SetRequestHeaders applies the headers every request of a download carries.
func SetRequestHeaders(req *http.Request, runtime *types.RuntimeConfig) {
	req.Header.Set("User-Agent", runtime.GetUserAgent())
	req.Header.Set("Accept-Encoding", "identity")
}
