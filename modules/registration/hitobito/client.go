package hitobito

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/logging"
)

const (
	jsonAPIContentType = "application/vnd.api+json"
	formContentType    = "application/x-www-form-urlencoded"
	turboAccept        = "text/vnd.turbo-stream.html, text/html, application/xhtml+xml"
	defaultUserAgent   = "Mozilla/5.0 (compatible; registrar-bot/1.0)"

	ifaceAPI      = "api"
	ifaceFrontend = "frontend"
)

type Options struct {
	BaseURL       string
	APIToken      string
	FrontendURL   string
	BrowserCookie string
	UserAgent     string
	Timeout       time.Duration
	Location      *time.Location

	// Limiter throttles outbound requests; nil disables throttling.
	Limiter *limiter.Limiter
	// Transport overrides the HTTP round tripper, mostly for tests.
	Transport http.RoundTripper
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Client talks to the registry through two channels: the token-authenticated
// JSON:API under BaseURL, and the cookie-authenticated Rails frontend under
// FrontendURL.
type Client struct {
	opts     Options
	base     *url.URL
	frontend *url.URL
	api      *http.Client
	web      *http.Client
	log      *logrus.Entry
	tracer   trace.Tracer
	metrics  *metrics
}

func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "hitobito: parse base url")
	}
	frontend, err := url.Parse(strings.TrimRight(opts.FrontendURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "hitobito: parse frontend url")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "hitobito: cookie jar")
	}
	if opts.BrowserCookie != "" {
		cookies, err := http.ParseCookie(opts.BrowserCookie)
		if err != nil {
			return nil, errors.Wrap(err, "hitobito: parse browser cookie")
		}
		jar.SetCookies(frontend, cookies)
	}

	return &Client{
		opts:     opts,
		base:     base,
		frontend: frontend,
		api:      &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		web:      &http.Client{Timeout: opts.Timeout, Transport: opts.Transport, Jar: jar},
		log:      opts.Logger.WithField("component", "hitobito"),
		tracer:   otel.Tracer("github.com/iota-uz/registrar/modules/registration/hitobito"),
		metrics:  metricsSingleton(),
	}, nil
}

// NewClientFromConfig builds a client from the registry settings, failing with
// ErrMissingRegistrySetting when a transport setting is absent.
func NewClientFromConfig(cfg *configuration.RegistryOptions, lim *limiter.Limiter, log *logrus.Entry) (*Client, error) {
	if err := cfg.Require(); err != nil {
		return nil, err
	}
	return NewClient(Options{
		BaseURL:       cfg.BaseURL,
		APIToken:      cfg.APIToken,
		FrontendURL:   cfg.FrontendURL,
		BrowserCookie: cfg.BrowserCookie,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.RequestTimeout,
		Location:      cfg.Location(),
		Limiter:       lim,
		Logger:        log,
	})
}

// Today is the current calendar day in the registry's time zone.
func (c *Client) Today() time.Time {
	return c.opts.Now().In(c.opts.Location)
}

func (c *Client) APIGet(ctx context.Context, path string, params url.Values, out any) error {
	return c.apiRequest(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) APIPost(ctx context.Context, path string, body, out any) error {
	return c.apiRequest(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) APIPatch(ctx context.Context, path string, body, out any) error {
	return c.apiRequest(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) APIDelete(ctx context.Context, path string) error {
	return c.apiRequest(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) apiRequest(ctx context.Context, method, path string, params url.Values, body, out any) error {
	target := c.base.String() + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "hitobito: marshal request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return errors.Wrap(err, "hitobito: build request")
	}
	req.Header.Set("X-TOKEN", c.opts.APIToken)
	req.Header.Set("Content-Type", jsonAPIContentType)
	req.Header.Set("Accept", jsonAPIContentType)

	resp, err := c.do(ctx, ifaceAPI, c.api, req)
	if err != nil {
		return err
	}

	if !ok(resp.Status) {
		if method == http.MethodDelete && resp.Status == http.StatusNotFound {
			c.log.WithField("path", path).Warn("delete target already gone")
			return nil
		}
		return &HTTPError{Method: method, URL: target, Status: resp.Status, Body: resp.Body}
	}
	if method == http.MethodDelete || resp.Status == http.StatusNoContent || strings.TrimSpace(resp.Body) == "" || out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(resp.Body), out); err != nil {
		return errors.Wrapf(err, "hitobito: decode %s %s", method, path)
	}
	return nil
}

// Response is a frontend answer with its body read.
type Response struct {
	Status   int
	Header   http.Header
	Body     string
	FinalURL string
}

type RequestOptions struct {
	Params  url.Values
	Headers http.Header
	Body    url.Values
}

func (c *Client) HTTPGet(ctx context.Context, target string, opts RequestOptions) (*Response, error) {
	return c.frontendRequest(ctx, http.MethodGet, target, opts)
}

func (c *Client) HTTPPost(ctx context.Context, target string, opts RequestOptions) (*Response, error) {
	return c.frontendRequest(ctx, http.MethodPost, target, opts)
}

func (c *Client) frontendRequest(ctx context.Context, method, target string, opts RequestOptions) (*Response, error) {
	u, err := c.resolveFrontend(target)
	if err != nil {
		return nil, err
	}
	if len(opts.Params) > 0 {
		q := u.Query()
		for k, vs := range opts.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if method != http.MethodGet && opts.Body != nil {
		reader = strings.NewReader(opts.Body.Encode())
	}
	req, err := http.NewRequest(method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "hitobito: build request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", formContentType)
	}
	for k, vs := range opts.Headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.do(ctx, ifaceFrontend, c.web, req)
}

func (c *Client) resolveFrontend(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(err, "hitobito: parse url %q", target)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	u := *c.frontend
	u.Path = strings.TrimRight(c.frontend.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return &u, nil
}

// frontendJSON GETs a cookie-authenticated JSON endpoint. The registry answers
// an expired session with its HTML login page, reported as ErrSessionExpired.
func (c *Client) frontendJSON(ctx context.Context, path string, params url.Values, out any) error {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	resp, err := c.HTTPGet(ctx, path, RequestOptions{Params: params, Headers: headers})
	if err != nil {
		return err
	}
	if !ok(resp.Status) {
		return &HTTPError{Method: http.MethodGet, URL: resp.FinalURL, Status: resp.Status, Body: resp.Body}
	}
	if mimetype.Detect([]byte(resp.Body)).Is("text/html") {
		return errors.Wrapf(ErrSessionExpired, "GET %s", path)
	}
	if err := json.Unmarshal([]byte(resp.Body), out); err != nil {
		return errors.Wrapf(err, "hitobito: decode %s", path)
	}
	return nil
}

// FormSubmission describes a Rails form round trip: fetch the form, scrape
// its tokens and optionally its current values, then submit.
type FormSubmission struct {
	GetFormURL string
	PostURL    string
	// Params is the query of the form GET.
	Params   url.Values
	FormData url.Values
	// Method is POST, PATCH or PUT. PATCH and PUT tunnel through POST via _method.
	Method             string
	ExtractExtraFields bool
	Headers            http.Header
	// Amend runs on the final payload before it is posted.
	Amend func(payload url.Values)
}

func (c *Client) SubmitRailsForm(ctx context.Context, sub FormSubmission) (*Response, error) {
	page, err := c.HTTPGet(ctx, sub.GetFormURL, RequestOptions{Params: sub.Params})
	if err != nil {
		return nil, err
	}
	if !ok(page.Status) {
		return nil, errors.Errorf("hitobito: failed to fetch form from %s: %d", sub.GetFormURL, page.Status)
	}
	doc, err := parseFormPage(page.Body)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(sub.Method)
	if method == "" {
		method = http.MethodPost
	}
	payload := url.Values{}
	if method != http.MethodPost {
		payload.Set("_method", strings.ToLower(method))
	}
	payload.Set("authenticity_token", doc.authenticityToken(sub.PostURL))
	if sub.ExtractExtraFields {
		for k, vs := range doc.fields(sub.PostURL) {
			payload[k] = append(payload[k], vs...)
		}
	}
	for k, vs := range sub.FormData {
		if strings.HasSuffix(k, "[]") || len(vs) > 1 {
			payload[k] = append(payload[k], vs...)
			continue
		}
		payload.Del(k)
		payload[k] = append([]string(nil), vs...)
	}
	if sub.Amend != nil {
		sub.Amend(payload)
	}

	formURL := page.FinalURL
	if formURL == "" {
		formURL = sub.GetFormURL
	}
	headers := http.Header{}
	headers.Set("Referer", formURL)
	headers.Set("Accept", turboAccept)
	headers.Set("X-Turbo-Request-Id", uuid.NewString())
	for k, vs := range sub.Headers {
		headers[http.CanonicalHeaderKey(k)] = vs
	}
	if meta := doc.csrfMetaToken(); meta != "" && headers.Get("X-CSRF-Token") == "" {
		headers.Set("X-CSRF-Token", meta)
	}

	return c.HTTPPost(ctx, sub.PostURL, RequestOptions{Headers: headers, Body: payload})
}

func (c *Client) do(ctx context.Context, iface string, hc *http.Client, req *http.Request) (*Response, error) {
	if err := c.wait(ctx, iface); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "hitobito "+req.Method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("hitobito.interface", iface),
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		))
	defer span.End()

	start := time.Now()
	resp, err := hc.Do(req.WithContext(ctx))
	c.metrics.requestLatency.WithLabelValues(iface, req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.requestTotal.WithLabelValues(iface, req.Method, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(err, "hitobito: %s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "hitobito: read %s %s", req.Method, req.URL.Path)
	}
	c.metrics.requestTotal.WithLabelValues(iface, req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}

	c.log.WithFields(logrus.Fields{
		"interface": iface,
		"method":    req.Method,
		"path":      req.URL.Path,
		"status":    resp.StatusCode,
		"duration":  time.Since(start).String(),
	}).Debug("registry request")

	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     string(body),
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// wait blocks until the limiter admits another request on iface.
func (c *Client) wait(ctx context.Context, iface string) error {
	if c.opts.Limiter == nil {
		return nil
	}
	key := "hitobito:" + iface
	for {
		lctx, err := c.opts.Limiter.Get(ctx, key)
		if err != nil {
			return errors.Wrap(err, "hitobito: rate limiter")
		}
		if !lctx.Reached {
			return nil
		}
		c.metrics.throttledTotal.WithLabelValues(iface).Inc()
		delay := time.Until(time.Unix(lctx.Reset, 0))
		if delay <= 0 {
			delay = 10 * time.Millisecond
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
