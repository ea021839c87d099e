// Package tor manages the anonymizing route: a SOCKS5-backed HTTP
// client, circuit rotation through the control port, and the exit-IP
// probe the runner uses to health-check the route before the pipeline
// starts. The pipeline itself never talks to this package.
package tor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

var ipCheckServices = []string{
	"https://api.ipify.org?format=text",
	"https://icanhazip.com",
}

// Client wraps an HTTP client routed through a Tor SOCKS5 proxy and
// rotates its circuit after every rotateAfter requests.
type Client struct {
	proxyAddr    string
	controlAddr  string
	controlPass  string
	client       *http.Client
	mutex        sync.RWMutex
	requestCount int
	rotateAfter  int
}

func NewClient(proxyAddr, controlAddr, controlPass string, rotateAfter int) (*Client, error) {
	c := &Client{
		proxyAddr:   proxyAddr,
		controlAddr: controlAddr,
		controlPass: controlPass,
		rotateAfter: rotateAfter,
	}
	if err := c.rebuildConnection(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) rebuildConnection() error {
	dialer, err := proxy.SOCKS5("tcp", c.proxyAddr, nil, proxy.Direct)
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	c.mutex.Lock()
	old := c.client
	c.client = httpClient
	c.mutex.Unlock()

	if old != nil {
		if t, ok := old.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
	return nil
}

// HTTPClient returns the current proxied client. Transport and the
// downloader hold this; rotation swaps the circuit underneath them.
func (c *Client) HTTPClient() *http.Client {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.client
}

// NewCircuit asks the control port for a fresh circuit (a new exit IP)
// and rebuilds the client connection pool on top of it.
func (c *Client) NewCircuit() error {
	conn, err := net.DialTimeout("tcp", c.controlAddr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial control port: %w", err)
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	defer tp.Close()

	if err := tp.PrintfLine(`AUTHENTICATE "%s"`, c.controlPass); err != nil {
		return fmt.Errorf("failed to send AUTHENTICATE: %w", err)
	}
	line, err := tp.ReadLine()
	if err != nil {
		return fmt.Errorf("failed to read AUTHENTICATE response: %w", err)
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("auth failed: %s", line)
	}

	if err := tp.PrintfLine("SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("failed to send NEWNYM: %w", err)
	}
	line, err = tp.ReadLine()
	if err != nil {
		return fmt.Errorf("failed to read NEWNYM response: %w", err)
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("NEWNYM failed: %s", line)
	}

	// Give the new circuit a moment before rebuilding the pool.
	time.Sleep(2 * time.Second)

	c.mutex.Lock()
	c.requestCount = 0
	c.mutex.Unlock()

	return c.rebuildConnection()
}

// CountRequest records one request and rotates the circuit when the
// per-circuit budget is spent.
func (c *Client) CountRequest() error {
	c.mutex.Lock()
	c.requestCount++
	rotate := c.rotateAfter > 0 && c.requestCount >= c.rotateAfter
	c.mutex.Unlock()

	if !rotate {
		return nil
	}
	return c.NewCircuit()
}

// ExitIP reports the route's current public IP, for the pre-run health
// check. An error means the route is down and the run should not start.
func (c *Client) ExitIP(ctx context.Context) (string, error) {
	var lastErr error
	for _, service := range ipCheckServices {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, service, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.HTTPClient().Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("ip check %s returned status %d", service, resp.StatusCode)
			continue
		}
		if ip := strings.TrimSpace(string(body)); ip != "" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("could not determine exit IP: %w", lastErr)
}
