package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/utils"
)

// NewHTTPClient builds the transfer client: proxy (HTTP or SOCKS5), optional
// TLS verification skip, no overall timeout since media files are large.
func NewHTTPClient(runtime *types.RuntimeConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
		Proxy:                 http.ProxyFromEnvironment,
	}

	if runtime != nil && runtime.ProxyURL != "" {
		configureProxy(transport, runtime.ProxyURL)
	}

	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("Transfer client: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport:     transport,
		CheckRedirect: keepHeadersOnRedirect,
	}
}

func configureProxy(transport *http.Transport, rawProxy string) {
	parsedURL, err := url.Parse(rawProxy)
	if err != nil {
		utils.Debug("Transfer client: Invalid proxy URL %s: %v", rawProxy, err)
		return
	}
	if !strings.HasPrefix(parsedURL.Scheme, "socks5") {
		transport.Proxy = http.ProxyURL(parsedURL)
		return
	}

	utils.Debug("Transfer client: Using SOCKS5 proxy: %s", parsedURL.Host)
	var auth *proxy.Auth
	if parsedURL.User != nil {
		pass, _ := parsedURL.User.Password()
		auth = &proxy.Auth{User: parsedURL.User.Username(), Password: pass}
	}
	dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
	if err != nil {
		utils.Debug("Transfer client: Failed to create SOCKS5 dialer: %v", err)
		return
	}
	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
		return
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
}

// keepHeadersOnRedirect copies the original request headers (token,
// user agent) to redirected requests.
func keepHeadersOnRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	for key, vals := range via[0].Header {
		if _, set := req.Header[key]; !set {
			req.Header[key] = vals
		}
	}
	return nil
}
