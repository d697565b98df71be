package surface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/lifecycle"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/minihost/backend/internal/infrastructure/resilience"
)

// MaxDocumentSize caps fetched pages and scripts.
const MaxDocumentSize = 5 * 1024 * 1024

// ErrNoSource is returned for a Source with neither URL nor HTML.
var ErrNoSource = errors.New("content source has neither url nor html")

// Loader turns a Source into runnable Content.
type Loader struct {
	client *httpclient.Client
	logger *zap.Logger
}

// NewLoader creates a loader that fetches through client.
func NewLoader(client *httpclient.Client, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{client: client, logger: logger.Named("loader")}
}

// Load materializes src. Failures are *lifecycle.LoadError; connection
// failures against a developer server are DevTargetUnreachable.
func (l *Loader) Load(ctx context.Context, src Source) (Content, error) {
	var (
		body []byte
		base *url.URL
	)

	if src.URL != "" {
		parsed, err := url.Parse(src.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return Content{}, &lifecycle.LoadError{Kind: lifecycle.Generic, URL: src.URL, Err: fmt.Errorf("invalid url %q", src.URL)}
		}
		base = parsed
	}

	switch {
	case src.HTML != "":
		body = []byte(src.HTML)
	case base != nil:
		fetched, err := l.fetch(ctx, base.String())
		if err != nil {
			return Content{}, l.classify(src, err)
		}
		body = fetched
	default:
		return Content{}, &lifecycle.LoadError{Kind: lifecycle.Generic, Err: ErrNoSource}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, &lifecycle.LoadError{Kind: lifecycle.Generic, URL: src.URL, Err: fmt.Errorf("parse html: %w", err)}
	}

	scripts, err := l.scripts(ctx, doc, base)
	if err != nil {
		return Content{}, l.classify(src, err)
	}

	return Content{
		URL:      src.URL,
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Document: doc,
		Scripts:  scripts,
	}, nil
}

// scripts collects executable scripts in document order. External scripts
// are fetched only from the page's own origin.
func (l *Loader) scripts(ctx context.Context, doc *goquery.Document, base *url.URL) ([]Script, error) {
	var scripts []Script
	all := doc.Find("script")
	for i := range all.Nodes {
		sel := all.Eq(i)
		if !isJavaScript(sel.AttrOr("type", "")) {
			continue
		}

		src, external := sel.Attr("src")
		if !external {
			scripts = append(scripts, Script{Name: fmt.Sprintf("inline-%d.js", i), Source: sel.Text()})
			continue
		}

		target, ok := sameOrigin(base, src)
		if !ok {
			l.logger.Debug("skipping script outside the page origin", zap.String("src", src))
			continue
		}
		source, err := l.fetch(ctx, target.String())
		if err != nil {
			return nil, fmt.Errorf("fetch script %s: %w", target, err)
		}
		scripts = append(scripts, Script{Name: target.String(), Source: string(source)})
	}
	return scripts, nil
}

func (l *Loader) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := l.client.Request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Execute(func() (*resty.Response, error) {
		return req.Get(target)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Body()) > MaxDocumentSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", target, MaxDocumentSize)
	}
	return toUTF8(resp.Body(), resp.Header().Get("Content-Type")), nil
}

func (l *Loader) classify(src Source, err error) *lifecycle.LoadError {
	if src.DevMode && unreachable(err) {
		return &lifecycle.LoadError{Kind: lifecycle.DevTargetUnreachable, URL: src.URL, Err: err}
	}
	return &lifecycle.LoadError{Kind: lifecycle.Generic, URL: src.URL, Err: err}
}

func unreachable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return true
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isJavaScript(scriptType string) bool {
	switch strings.ToLower(strings.TrimSpace(scriptType)) {
	case "", "text/javascript", "application/javascript":
		return true
	default:
		return false
	}
}

func sameOrigin(base *url.URL, ref string) (*url.URL, bool) {
	if base == nil {
		return nil, false
	}
	target, err := base.Parse(ref)
	if err != nil {
		return nil, false
	}
	return target, target.Scheme == base.Scheme && target.Host == base.Host
}
