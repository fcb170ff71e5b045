package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"

	"streamkey-relay/work/config"
	"streamkey-relay/work/errs"
	"streamkey-relay/work/logger"
	"streamkey-relay/work/metrics"
	"streamkey-relay/work/utils"
)

// maxBodySize caps how much of an upstream response is kept in memory.
const maxBodySize = 4 << 20

// ErrResponseTooLarge is the cause of an UpstreamError for a body over maxBodySize.
var ErrResponseTooLarge = errors.New("upstream response too large")

var (
	log = logger.New("upstream")
	api = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Response is what the streaming platform answered with.
type Response struct {
	StatusCode int
	Body       []byte
	JSON       bool // Body is a complete JSON document
}

// Payload returns the body in the shape the API echoes back to callers:
// raw JSON when it parsed, plain text otherwise.
func (r *Response) Payload() any {
	return payload(r.Body, r.JSON)
}

// Client sends stream-start requests. Outbound calls go through a rate limiter
// and a bounded worker pool so bursts from the UI cannot flood the platform.
type Client struct {
	http      *http.Client
	endpoint  string
	userAgent string
	obfuscate bool
	limiter   ratelimit.Limiter
	pool      *ants.Pool
}

// New builds a Client from cfg.
func New(cfg *config.Config) (*Client, error) {
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient is New with a caller-supplied http.Client.
func NewWithHTTPClient(cfg *config.Config, httpClient *http.Client) (*Client, error) {
	var limiter ratelimit.Limiter
	if cfg.UpstreamRateLimit > 0 {
		limiter = ratelimit.New(cfg.UpstreamRateLimit, ratelimit.Per(time.Minute))
	} else {
		limiter = ratelimit.NewUnlimited()
	}

	size := cfg.MaxConcurrentRequests
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(p interface{}) {
		log.Error("{upstream - pool} worker panic: %v", p)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create upstream worker pool")
	}

	return &Client{
		http:      httpClient,
		endpoint:  cfg.UpstreamURL,
		userAgent: cfg.UserAgent,
		obfuscate: cfg.ObfuscateSecrets,
		limiter:   limiter,
		pool:      pool,
	}, nil
}

// Close releases the worker pool.
func (c *Client) Close() {
	c.pool.Release()
}

type result struct {
	resp *Response
	err  error
}

// StartStream posts title to the start endpoint authenticated with token.
// Transport failures and non-2xx answers come back as *errs.UpstreamError.
func (c *Client) StartStream(ctx context.Context, token, title string) (*Response, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}()

	done := make(chan result, 1)
	err := c.pool.Submit(func() {
		c.limiter.Take()
		resp, err := c.do(ctx, token, title)
		done <- result{resp: resp, err: err}
	})
	if err != nil {
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		return nil, errs.Upstream(errors.Wrap(err, "upstream worker pool"), 0, nil)
	}

	return await(ctx, done)
}

// await waits for the worker's result. A result that is already buffered wins
// over a cancelled context so a stream that did start is never reported as failed.
func await(ctx context.Context, done <-chan result) (*Response, error) {
	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
	}

	select {
	case r := <-done:
		return r.resp, r.err
	default:
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		return nil, errs.Upstream(ctx.Err(), 0, nil)
	}
}

func (c *Client) do(ctx context.Context, token, title string) (*Response, error) {
	form := url.Values{}
	form.Set("title", title)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		return nil, errs.Upstream(err, 0, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	log.Debug("{upstream - StartStream} POST %s token=%s", utils.LogURL(c.obfuscate, c.endpoint), utils.MaskToken(token))

	httpResp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		log.Warn("{upstream - StartStream} request to %s failed: %v", utils.LogURL(c.obfuscate, c.endpoint), err)
		return nil, errs.Upstream(err, 0, nil)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize+1))
	if err != nil {
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		return nil, errs.Upstream(errors.Wrap(err, "read upstream response"), httpResp.StatusCode, nil)
	}
	if len(body) > maxBodySize {
		metrics.UpstreamResponses.WithLabelValues("error").Inc()
		log.Warn("{upstream - StartStream} status %d: response exceeds %d bytes", httpResp.StatusCode, maxBodySize)
		return nil, errs.Upstream(ErrResponseTooLarge, httpResp.StatusCode, nil)
	}

	metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		JSON:       api.Valid(body),
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		preview := string(body)
		if c.obfuscate {
			preview = utils.RedactSecrets(preview)
		}
		log.Warn("{upstream - StartStream} status %d: %s", httpResp.StatusCode, utils.Truncate(preview, 512))
		return nil, errs.Upstream(nil, httpResp.StatusCode, resp.Payload())
	}

	log.Debug("{upstream - StartStream} status %d, %d bytes, json=%t", resp.StatusCode, len(body), resp.JSON)
	return resp, nil
}

func payload(body []byte, isJSON bool) any {
	if isJSON {
		return json.RawMessage(body)
	}
	return string(body)
}

func (r *Response) String() string {
	return fmt.Sprintf("status=%d bytes=%d json=%t", r.StatusCode, len(r.Body), r.JSON)
}
