package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

// hopHeaders are connection-scoped and never forwarded
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ServiceClient forwards requests to one backend service
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// ServiceClients holds all service clients
type ServiceClients struct {
	AuthService   *ServiceClient
	TenantService *ServiceClient
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: utils.NewCircuitBreaker(name, 5, 30*time.Second),
	}
}

// Proxy forwards the request with the given route prefix stripped
func (sc *ServiceClient) Proxy(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Request.URL.Path, prefix)
		if path == "" {
			path = "/"
		}
		targetURL := sc.baseURL + path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create request")
			return
		}
		req.ContentLength = c.Request.ContentLength
		copyHeaders(req.Header, c.Request.Header)
		setForwardedHeaders(req, c)

		var resp *http.Response
		err = sc.breaker.Call(func() error {
			var callErr error
			resp, callErr = sc.httpClient.Do(req)
			if callErr == nil && resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("%s returned status %d", sc.name, resp.StatusCode)
			}
			return callErr
		})
		if err != nil && resp == nil {
			if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
				utils.ServiceUnavailableResponse(c, "Service temporarily unavailable")
				return
			}
			middleware.Logger(c).WithFields(logrus.Fields{
				"service": sc.name,
				"error":   err,
			}).Error("Failed to communicate with service")
			utils.ErrorResponse(c, http.StatusBadGateway, "Failed to communicate with service")
			return
		}
		defer resp.Body.Close()

		copyHeaders(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			middleware.Logger(c).WithError(err).Warn("Failed to stream response body")
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// setForwardedHeaders appends the peer address to X-Forwarded-For and keeps
// the host the client asked for
func setForwardedHeaders(req *http.Request, c *gin.Context) {
	clientIP := c.RemoteIP()
	if prior := c.Request.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	req.Header.Set("X-Real-IP", clientIP)

	if c.Request.Header.Get(tenancy.HeaderForwardedHost) == "" && c.Request.Host != "" {
		req.Header.Set(tenancy.HeaderForwardedHost, c.Request.Host)
	}
	req.Header.Set(middleware.HeaderRequestID, c.GetHeader(middleware.HeaderRequestID))
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	return nil
}

// GetServiceStatus checks every service concurrently
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) (map[string]interface{}, bool) {
	clients := []*ServiceClient{scs.AuthService, scs.TenantService}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		status  = make(map[string]interface{}, len(clients))
	)
	for _, sc := range clients {
		wg.Add(1)
		go func(sc *ServiceClient) {
			defer wg.Done()
			err := sc.HealthCheck(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				status[sc.name] = map[string]interface{}{
					"healthy": false,
					"error":   err.Error(),
				}
				return
			}
			status[sc.name] = map[string]interface{}{
				"healthy": true,
				"circuit": sc.breaker.State(),
			}
		}(sc)
	}
	wg.Wait()

	return status, healthy
}
