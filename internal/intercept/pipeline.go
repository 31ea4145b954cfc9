// Package intercept subscribes to CDP Fetch paused-response events,
// instruments matching bodies, and fulfils the request with rewritten
// content and repaired headers — or continues it unchanged on any
// failure, per §4.3's "never block the page on our own mistake" rule.
package intercept

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/instrument"
	"github.com/bombadil/exerciser/internal/sourceid"
	"github.com/bombadil/exerciser/pkg/types"
)

// Patterns are the two request-paused subscriptions the pipeline
// needs: stage=Response for scripts and for documents.
func Patterns() []*fetch.RequestPattern {
	return []*fetch.RequestPattern{
		{URLPattern: "*", RequestStage: fetch.RequestStageResponse, ResourceType: network.ResourceTypeScript},
		{URLPattern: "*", RequestStage: fetch.RequestStageResponse, ResourceType: network.ResourceTypeDocument},
	}
}

// Pipeline owns the instrumentation policy applied to intercepted
// responses.
type Pipeline struct {
	logger      *zap.Logger
	edgeMapSize int
}

// New builds a Pipeline. edgeMapSize must match the browser-side
// coverage ABI's array length.
func New(logger *zap.Logger, edgeMapSize int) *Pipeline {
	return &Pipeline{logger: logger, edgeMapSize: edgeMapSize}
}

// Install registers the fetch.EventRequestPaused listener on ctx. It
// must be called before fetch.Enable so no paused request is missed.
func (p *Pipeline) Install(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(event interface{}) {
		ev, ok := event.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go p.handle(ctx, ev)
	})
}

func (p *Pipeline) handle(ctx context.Context, ev *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	c := chromedp.FromContext(cmdCtx)
	executor := cdp.WithExecutor(cmdCtx, c.Target)

	if err := p.fulfil(executor, ev); err != nil {
		if isInterceptionRace(err) {
			p.logger.Debug("interception race, continuing request unchanged",
				zap.String("request_id", string(ev.RequestID)), zap.Error(err))
		} else {
			p.logger.Warn("instrumentation failed, continuing request unchanged",
				zap.String("request_id", string(ev.RequestID)),
				zap.String("url", ev.Request.URL),
				zap.Error(err))
		}
		if ferr := fetch.ContinueRequest(ev.RequestID).Do(executor); ferr != nil {
			p.logger.Debug("failed to continue unmodified request",
				zap.String("request_id", string(ev.RequestID)), zap.Error(ferr))
		}
	}
}

func (p *Pipeline) fulfil(ctx context.Context, ev *fetch.EventRequestPaused) error {
	if ev.ResponseStatusCode != 200 {
		return fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}

	bodyStr, base64Encoded, err := fetch.GetResponseBody(ev.RequestID).Do(ctx)
	if err != nil {
		return fmt.Errorf("get response body: %w", err)
	}
	body := []byte(bodyStr)
	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(bodyStr)
		if err != nil {
			return fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	headers := responseHeaderMap(ev.ResponseHeaders)
	sid := sourceid.SourceID(headers, body)

	kind, instrumented, err := p.instrument(headers, body, sid)
	if err != nil {
		return fmt.Errorf("instrument: %w", err)
	}
	if instrumented == nil {
		return fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}

	outHeaders := sourceid.BuildResponseHeaders(headers, kind, sid)
	return fetch.FulfillRequest(ev.RequestID, 200).
		WithResponseHeaders(toHeaderEntries(outHeaders)).
		WithBody(base64.StdEncoding.EncodeToString(instrumented)).
		Do(ctx)
}

// instrument decides the resource routing for a response and returns
// the rewritten body, or (kind, nil, nil) when the body should pass
// through unchanged (a non-script, non-HTML document).
func (p *Pipeline) instrument(headers map[string]string, body []byte, sid uint64) (types.ResourceKind, []byte, error) {
	contentType := lookupContentType(headers)

	if strings.Contains(strings.ToLower(contentType), "javascript") || strings.Contains(strings.ToLower(contentType), "ecmascript") {
		rewritten, err := instrument.Script(string(body), sid, p.edgeMapSize)
		if err != nil {
			return types.ResourceScript, nil, err
		}
		return types.ResourceScript, []byte(rewritten), nil
	}

	if instrument.IsHTMLDocument(contentType, body) {
		rewritten, err := instrument.HTMLDocument(body, sid, p.edgeMapSize)
		if err != nil {
			return types.ResourceDocument, nil, err
		}
		return types.ResourceDocument, rewritten, nil
	}

	return types.ResourceDocument, nil, nil
}

func lookupContentType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	return ""
}

func responseHeaderMap(entries []*fetch.HeaderEntry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Name] = e.Value
	}
	return out
}

func toHeaderEntries(headers map[string]string) []*fetch.HeaderEntry {
	out := make([]*fetch.HeaderEntry, 0, len(headers))
	for k, v := range headers {
		out = append(out, &fetch.HeaderEntry{Name: k, Value: v})
	}
	return out
}

func isInterceptionRace(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "invalid interceptionid") ||
		strings.Contains(strings.ToLower(err.Error()), "invalid interception id")
}
