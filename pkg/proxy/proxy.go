package proxy

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ngoyal88/auditrelay/pkg/capture"
	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/middleware"
	"github.com/ngoyal88/auditrelay/pkg/redact"
	"github.com/ngoyal88/auditrelay/pkg/storage"
)

const defaultPersistTimeout = 5 * time.Second

// Options tune a Gateway. The zero value is usable.
type Options struct {
	// Transport performs the upstream call; http.DefaultTransport when nil.
	Transport http.RoundTripper
	// OnRecord is called with every record that was stored successfully.
	OnRecord func(*storage.CaptureRecord)
	// PersistTimeout bounds a single store write.
	PersistTimeout time.Duration
}

// Gateway forwards requests to the configured upstream and writes one
// CaptureRecord per request. Persistence happens off the request path: a
// failing store never changes what the client sees.
type Gateway struct {
	cfgs           config.Source
	store          storage.Store
	proxy          *httputil.ReverseProxy
	onRecord       func(*storage.CaptureRecord)
	persistTimeout time.Duration
	now            func() time.Time

	inflight sync.WaitGroup
}

func New(cfgs config.Source, store storage.Store, opts Options) *Gateway {
	g := &Gateway{
		cfgs:           cfgs,
		store:          store,
		onRecord:       opts.OnRecord,
		persistTimeout: opts.PersistTimeout,
		now:            time.Now,
	}
	if g.persistTimeout <= 0 {
		g.persistTimeout = defaultPersistTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	g.proxy = &httputil.ReverseProxy{
		Rewrite:        g.rewrite,
		Transport:      transport,
		FlushInterval:  -1,
		ModifyResponse: g.modifyResponse,
		ErrorHandler:   g.handleError,
	}
	return g
}

type exchangeKey struct{}

// exchange is the per-request state shared by the ReverseProxy hooks.
type exchange struct {
	cfg    *config.Config
	target *url.URL
	rec    *storage.CaptureRecord

	upstreamStart time.Time
	reqBody       *capture.Reader
	respBody      *capture.Reader

	reqOnce      sync.Once
	reqDone      chan struct{}
	reqText      string
	reqTruncated bool

	finalized sync.Once
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

func (ex *exchange) resolveRequest(text string, truncated bool) {
	ex.reqOnce.Do(func() {
		ex.reqText = text
		ex.reqTruncated = truncated
		close(ex.reqDone)
	})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := g.cfgs.Get()
	if cfg == nil || cfg.Proxy.Key == "" {
		middleware.SetCORS(w.Header())
		middleware.RespondError(w, http.StatusInternalServerError, "missing UPSTREAM_KEY")
		return
	}
	target, err := url.Parse(cfg.Proxy.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		log.Printf("[PROXY] invalid upstream base URL %q: %v", cfg.Proxy.Target, err)
		middleware.SetCORS(w.Header())
		middleware.RespondError(w, http.StatusInternalServerError, "invalid UPSTREAM_BASE_URL")
		return
	}

	start := g.now()
	ex := &exchange{
		cfg:           cfg,
		target:        target,
		rec:           storage.NewRecord(start, strings.ToUpper(r.Method), redact.URLForLog(r.URL), cfg.Proxy.Target),
		upstreamStart: start,
		reqDone:       make(chan struct{}),
	}

	g.inflight.Add(1)
	defer g.settle(ex)

	out := r.WithContext(context.WithValue(r.Context(), exchangeKey{}, ex))
	g.captureRequestBody(out, ex)
	g.proxy.ServeHTTP(w, out)
}

// Wait blocks until every record started so far has been persisted or
// dropped.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

// captureRequestBody swaps r.Body for a tee that captures while the
// transport forwards. GET and HEAD forward no body; whatever they carry is
// read for the record only.
func (g *Gateway) captureRequestBody(r *http.Request, ex *exchange) {
	budget := ex.cfg.Capture.MaxBytes
	if r.Body == nil || r.Body == http.NoBody {
		ex.resolveRequest("", false)
		return
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		b, truncated, err := capture.ReadLimited(r.Body, budget)
		if err != nil {
			log.Printf("[CAPTURE] reading %s body: %v", r.Method, err)
		}
		r.Body = http.NoBody
		r.ContentLength = 0
		ex.resolveRequest(capture.Decode(b), truncated)
		return
	}

	ex.reqBody = capture.NewReader(r.Body, budget, func(res capture.Result) {
		ex.resolveRequest(res.Snippet, res.Truncated)
	})
	r.Body = transportBody{ex.reqBody}
}

// transportBody hides Close from the transport: a failed round trip closes
// the request body, and the capture must still see the bytes it never sent.
type transportBody struct {
	io.Reader
}

func (transportBody) Close() error { return nil }

// drainRequest reads what the transport left of the request body, up to
// one byte past the capture budget.
func (ex *exchange) drainRequest() {
	if ex.reqBody == nil {
		return
	}
	limit := int64(max(ex.cfg.Capture.MaxBytes, 0)) + 1
	if _, err := io.Copy(io.Discard, io.LimitReader(ex.reqBody, limit)); err != nil {
		log.Printf("[CAPTURE] draining request body: %v", err)
	}
}

// Restored after Rewrite strips them: inbound headers pass through as sent.
var forwardingHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

func (g *Gateway) rewrite(pr *httputil.ProxyRequest) {
	ex := exchangeFrom(pr.In.Context())

	pr.Out.URL = BuildUpstreamURL(ex.target, pr.In.URL)
	if NeedsQueryKey(pr.Out.URL) {
		InjectQueryKey(pr.Out.URL, ex.cfg.Proxy.Key)
	}
	pr.Out.Host = ""

	for _, h := range forwardingHeaders {
		if v, ok := pr.In.Header[h]; ok {
			pr.Out.Header[h] = v
		}
	}
	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Set("Authorization", "Bearer "+ex.cfg.Proxy.Key)

	ex.upstreamStart = g.now()
}

func (g *Gateway) modifyResponse(resp *http.Response) error {
	ex := exchangeFrom(resp.Request.Context())
	middleware.SetCORS(resp.Header)

	status := resp.StatusCode
	if !hasBody(resp) {
		g.finalize(ex, status, storage.ResponseCapture{}, "")
		return nil
	}

	logResponse := ex.cfg.Capture.LogResponse
	budget := 0
	if logResponse {
		budget = ex.cfg.Capture.MaxBytes
	}
	// Transports do not always surface a client hang-up as context.Canceled,
	// so the downstream context decides whether the stream was aborted.
	clientCtx := resp.Request.Context()
	ex.respBody = capture.NewReader(resp.Body, budget, func(res capture.Result) {
		aborted := res.Aborted || clientCtx.Err() != nil
		rc := storage.ResponseCapture{Truncated: res.Truncated, Stream: true, Aborted: aborted}
		if logResponse {
			rc.SnippetText = redact.String(res.Snippet)
		}
		g.finalize(ex, status, rc, "")
	})
	resp.Body = ex.respBody
	return nil
}

func (g *Gateway) handleError(w http.ResponseWriter, r *http.Request, err error) {
	errText := redact.String(err.Error())
	log.Printf("[PROXY] upstream error: %s", errText)

	if ex := exchangeFrom(r.Context()); ex != nil {
		ex.drainRequest()
		g.finalize(ex, http.StatusBadGateway, storage.ResponseCapture{}, errText)
	}
	middleware.SetCORS(w.Header())
	middleware.RespondError(w, http.StatusBadGateway, "upstream_fetch_failed")
}

// settle runs when ServeHTTP returns or unwinds. It resolves captures the
// transport left open and finalizes exchanges that never reached a hook.
func (g *Gateway) settle(ex *exchange) {
	if ex.reqBody != nil {
		ex.reqBody.Close()
	}
	if ex.respBody != nil {
		ex.respBody.Close()
	}
	ex.resolveRequest("", false)
	g.finalize(ex, http.StatusBadGateway, storage.ResponseCapture{}, "proxy aborted before upstream responded")
}

// finalize fixes the outcome of an exchange once and hands it to a
// background writer.
func (g *Gateway) finalize(ex *exchange, status int, resp storage.ResponseCapture, errText string) {
	ex.finalized.Do(func() {
		duration := g.now().Sub(ex.upstreamStart)
		upstreamLatency.Observe(duration.Seconds())
		observeOutcome(resp, errText)

		go g.persist(ex, status, duration, resp, errText)
	})
}

func (g *Gateway) persist(ex *exchange, status int, duration time.Duration, resp storage.ResponseCapture, errText string) {
	defer g.inflight.Done()
	<-ex.reqDone

	rec := ex.rec
	rec.Status = status
	rec.DurationMs = duration.Milliseconds()
	rec.Request = buildRequestCapture(ex.reqText, ex.reqTruncated, ex.cfg)
	rec.Response = resp
	rec.Error = errText

	ctx, cancel := context.WithTimeout(context.Background(), g.persistTimeout)
	defer cancel()
	if err := g.store.Put(ctx, rec); err != nil {
		storage.RecordFailure("put")
		log.Printf("[STORE] dropped record %s: %v", rec.ID, err)
		return
	}
	if g.onRecord != nil {
		g.onRecord(rec)
	}
}

func hasBody(resp *http.Response) bool {
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return false
	}
	switch {
	case resp.StatusCode < 200, resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotModified:
		return false
	case resp.Body == nil, resp.Body == http.NoBody:
		return false
	}
	return resp.ContentLength != 0
}
