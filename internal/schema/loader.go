package schema

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
)

// Fetcher retrieves a data model. *kgclient.Client satisfies it.
type Fetcher interface {
	FetchSchema(ctx context.Context, url string) (*kgpb.DataModel, error)
}

// Loader fetches the data model of one service at most once at a time and
// keeps the derived catalog until a fetch fails.
type Loader struct {
	service string
	baseURL string
	token   string
	fetcher Fetcher
	logger  *slog.Logger

	group   singleflight.Group
	catalog atomic.Pointer[Catalog]
}

func NewLoader(logger *slog.Logger, service, baseURL, token string, f Fetcher) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		service: service,
		baseURL: baseURL,
		token:   token,
		fetcher: f,
		logger:  logger.With("service", service),
	}
}

// Loaded reports whether a catalog is cached.
func (l *Loader) Loaded() bool { return l.catalog.Load() != nil }

// Invalidate drops the cached catalog.
func (l *Loader) Invalidate() { l.catalog.Store(nil) }

// DataModel returns the cached catalog or fetches it. Concurrent callers on a
// cold cache share one fetch. token overrides the configured token when set.
func (l *Loader) DataModel(ctx context.Context, token string) (*Catalog, error) {
	if c := l.catalog.Load(); c != nil {
		return c, nil
	}
	if token == "" {
		token = l.token
	}

	ch := l.group.DoChan("schema", func() (any, error) {
		if c := l.catalog.Load(); c != nil {
			return c, nil
		}
		fetchCtx := context.WithoutCancel(ctx)
		dm, err := l.fetcher.FetchSchema(fetchCtx, kgclient.SchemaURL(l.baseURL, token))
		observability.ObserveSchemaFetch(l.service, err)
		if err != nil {
			l.catalog.Store(nil)
			l.logger.Error("data model fetch failed", "err", err)
			if kgerr.Is(err, kgerr.KindSchemaFetch) {
				return nil, err
			}
			return nil, kgerr.Wrap(kgerr.KindSchemaFetch, "load schema", err)
		}
		c := Build(dm)
		l.catalog.Store(c)
		l.logger.Info("data model loaded",
			"layers", c.NumLayers,
			"tables", len(c.Layers)-c.NumLayers,
			"relationship_types", len(dm.RelationshipTypes))
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, kgerr.Wrap(kgerr.KindSchemaFetch, "load schema", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}

// EntityByID resolves a layer id from a request path.
func (l *Loader) EntityByID(ctx context.Context, layerID, token string) (*Layer, error) {
	c, err := l.DataModel(ctx, token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(layerID))
	if err != nil || id < 0 {
		return nil, kgerr.New(kgerr.KindInvalidLayerID, "resolve layer", "invalid layerId")
	}
	layer, ok := c.Layer(id)
	if !ok {
		return nil, kgerr.New(kgerr.KindInvalidLayerID, "resolve layer", "invalid layerId")
	}
	return layer, nil
}
