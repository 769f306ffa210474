// Package provider routes feature-service requests to the configured
// knowledge graph sources and shapes their failures into {code, message}
// errors.
package provider

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgserver"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/logger"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/schema"
)

const (
	MethodQuery        = "query"
	MethodQueryRelated = "queryRelatedRecords"

	unexpectedError = "unexpected error"
)

// Source is one knowledge graph service. *kgserver.Server implements it.
type Source interface {
	Name() string
	Ready() bool
	Warm(ctx context.Context) error
	Info(ctx context.Context, params model.QueryParams) (schema.ServiceInfo, error)
	LayerInfo(ctx context.Context, layerID string, params model.QueryParams) (schema.LayerInfo, error)
	QueryLayer(ctx context.Context, layerID string, params model.QueryParams) (kgserver.Result, error)
	QueryRelated(ctx context.Context, layerID string, params model.QueryParams) (kgserver.Result, error)
}

// Error is what callers see when a request fails.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) StatusCode() int { return e.Code }

type Provider struct {
	logger  *slog.Logger
	sources map[string]Source
}

func New(logger *slog.Logger, sources ...Source) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Provider{logger: logger, sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		p.sources[s.Name()] = s
	}
	return p
}

// Services lists the configured service names in order.
func (p *Provider) Services() []string {
	out := make([]string, 0, len(p.sources))
	for name := range p.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetData answers one request: service info without a layer, a layer query
// or related-records query for those methods, and layer info for any other
// method, as feature servers do for unknown operations.
func (p *Provider) GetData(ctx context.Context, req model.Request) (kgserver.Result, error) {
	src, ok := p.sources[req.Service]
	if !ok {
		return kgserver.Result{}, toError(kgerr.New(kgerr.KindServiceNotFound, "get data", "service not found"))
	}
	ctx = logger.WithService(ctx, req.Service)

	var (
		res kgserver.Result
		err error
	)
	switch {
	case req.Layer == "":
		var info schema.ServiceInfo
		info, err = src.Info(ctx, req.Query)
		res.Payload = info
	case req.Method == MethodQuery:
		res, err = src.QueryLayer(ctx, req.Layer, req.Query)
	case req.Method == MethodQueryRelated:
		res, err = src.QueryRelated(ctx, req.Layer, req.Query)
	default:
		var info schema.LayerInfo
		info, err = src.LayerInfo(ctx, req.Layer, req.Query)
		res.Payload = info
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "request failed",
			"layer", req.Layer, "method", req.Method, "kind", kgerr.KindOf(err).String(), "err", err)
		return kgserver.Result{}, toError(err)
	}
	return res, nil
}

func toError(err error) *Error {
	msg := kgerr.Message(err)
	if msg == "" {
		msg = unexpectedError
	}
	return &Error{Code: kgerr.HTTPStatus(kgerr.KindOf(err)), Message: msg}
}

// Warm loads every data model so the first queries do not pay for it.
// Failures are logged; the loaders retry on demand.
func (p *Provider) Warm(ctx context.Context) {
	for _, name := range p.Services() {
		if err := p.sources[name].Warm(ctx); err != nil {
			p.logger.WarnContext(ctx, "schema warm-up failed", "service", name, "err", err)
		}
	}
}

// Readiness reports ready once every source has loaded its data model and
// names the ones still pending.
func (p *Provider) Readiness() (bool, []string) {
	var pending []string
	for _, name := range p.Services() {
		if !p.sources[name].Ready() {
			pending = append(pending, name)
		}
	}
	return len(pending) == 0, pending
}
