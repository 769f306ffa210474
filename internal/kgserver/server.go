// Package kgserver is the per-service front of a knowledge graph: it resolves
// layers, translates feature-service queries to openCypher, runs them and
// assembles GeoJSON, optionally through the shared result cache.
package kgserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/keys"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/composer"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cypher"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/schema"
)

// ResultCache is the part of cache.ResultCache the server uses.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, e cache.Entry) error
	InvalidateEntity(ctx context.Context, service, entity, source string) (int, error)
}

// EventPublisher announces edits to other instances.
type EventPublisher interface {
	Publish(op, service, entity string, featureID any)
}

type Config struct {
	Name  string
	URL   string
	Token string
}

type Options struct {
	Translator *cypher.Translator
	Cache      ResultCache
	Events     EventPublisher
}

type Server struct {
	name       string
	url        string
	token      string
	logger     *slog.Logger
	loader     *schema.Loader
	translator *cypher.Translator
	client     *kgclient.Client
	cache      ResultCache
	events     EventPublisher
}

func New(logger *slog.Logger, cfg Config, client *kgclient.Client, opts Options) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Translator == nil {
		opts.Translator = cypher.New(logger, cypher.Options{})
	}
	logger = logger.With("service", cfg.Name)
	return &Server{
		name:       cfg.Name,
		url:        cfg.URL,
		token:      cfg.Token,
		logger:     logger,
		loader:     schema.NewLoader(logger, cfg.Name, cfg.URL, cfg.Token, client),
		translator: opts.Translator,
		client:     client,
		cache:      opts.Cache,
		events:     opts.Events,
	}
}

func (s *Server) Name() string { return s.name }

// Ready reports whether the data model has been loaded.
func (s *Server) Ready() bool { return s.loader.Loaded() }

// Warm loads the data model with the configured token.
func (s *Server) Warm(ctx context.Context) error {
	_, err := s.loader.DataModel(ctx, "")
	return err
}

// Result is a query answer: either an assembled collection or the encoded
// bytes of one served from the cache.
type Result struct {
	Payload any
	Cached  []byte
}

func (s *Server) tokenFor(params model.QueryParams) string {
	if params.Token != "" {
		return params.Token
	}
	return s.token
}

func (s *Server) Info(ctx context.Context, params model.QueryParams) (schema.ServiceInfo, error) {
	c, err := s.loader.DataModel(ctx, params.Token)
	if err != nil {
		return schema.ServiceInfo{}, err
	}
	return c.ServiceInfo(), nil
}

func (s *Server) LayerInfo(ctx context.Context, layerID string, params model.QueryParams) (schema.LayerInfo, error) {
	layer, err := s.loader.EntityByID(ctx, layerID, params.Token)
	if err != nil {
		return schema.LayerInfo{}, err
	}
	return layer.Info(), nil
}

// QueryLayer answers a layer query.
func (s *Server) QueryLayer(ctx context.Context, layerID string, params model.QueryParams) (Result, error) {
	layer, err := s.loader.EntityByID(ctx, layerID, params.Token)
	if err != nil {
		return Result{}, err
	}
	q, err := s.translator.BuildEntityQuery(layer, params)
	if err != nil {
		return Result{}, err
	}

	key := keys.Key(s.name, layer.Name(), q, s.tokenFor(params))
	if b, ok := s.cacheGet(ctx, key); ok {
		return Result{Cached: b}, nil
	}

	fc, err := s.Query(ctx, q, params, layer.GeometryField, true)
	if err != nil {
		return Result{}, err
	}
	s.cachePut(ctx, cache.Entry{
		Service:   s.name,
		Entity:    layer.Name(),
		Key:       key,
		Envelopes: s.envelopes(layer, params),
	}, fc)
	return Result{Payload: fc}, nil
}

// QueryRelated answers queryRelatedRecords: the related features of every
// matching feature, grouped by the origin's object id.
func (s *Server) QueryRelated(ctx context.Context, layerID string, params model.QueryParams) (Result, error) {
	const op = "query related"
	c, err := s.loader.DataModel(ctx, params.Token)
	if err != nil {
		return Result{}, err
	}
	layer, err := s.loader.EntityByID(ctx, layerID, params.Token)
	if err != nil {
		return Result{}, err
	}
	rel, ok := layer.Relationship(params.RelationshipID)
	if !ok {
		return Result{}, kgerr.New(kgerr.KindInvalidRelationship, op, "invalid relationshipId")
	}
	related, ok := c.Layer(rel.RelatedTableID)
	if !ok {
		return Result{}, kgerr.New(kgerr.KindInvalidRelationship, op, "invalid relatedTableId")
	}

	q, err := s.translator.BuildRelationshipQuery(layer, related, rel, params)
	if err != nil {
		return Result{}, err
	}

	key := keys.Key(s.name, layer.Name(), q, s.tokenFor(params))
	if b, ok := s.cacheGet(ctx, key); ok {
		return Result{Cached: b}, nil
	}

	res, err := s.run(ctx, q, params)
	if err != nil {
		return Result{}, err
	}
	rc := composer.ToRelationshipCollections(res.Rows, related.GeometryField, transformOf(res))
	rc.Decorate()
	s.cachePut(ctx, cache.Entry{
		Service:   s.name,
		Entity:    layer.Name(),
		Related:   []string{related.Name(), rel.Name},
		Key:       key,
		Envelopes: s.envelopes(layer, params),
	}, &rc)
	return Result{Payload: &rc}, nil
}

// Query runs openCypher text and assembles the rows as one collection:
// a count when params ask for one, features otherwise. decorate adds the
// metadata and filtersApplied members feature-service clients expect.
func (s *Server) Query(ctx context.Context, q string, params model.QueryParams, geomField string, decorate bool) (*composer.FeatureCollection, error) {
	res, err := s.run(ctx, q, params)
	if err != nil {
		return nil, err
	}
	var fc composer.FeatureCollection
	if params.ReturnCountOnly {
		fc = composer.CountCollection(res.Rows)
	} else {
		fc = composer.ToFeatureCollection(res.Rows, geomField, transformOf(res))
	}
	if decorate {
		fc.Decorate()
	}
	return &fc, nil
}

func (s *Server) run(ctx context.Context, q string, params model.QueryParams) (*kgclient.QueryResult, error) {
	start := time.Now()
	s.logger.DebugContext(ctx, "graph query", "cypher", q)
	res, err := s.client.ExecuteQuery(ctx, kgclient.QueryURL(s.url, q, s.tokenFor(params)))
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "graph query done",
		"rows", len(res.Rows), "frames", res.Frames, "elapsed", time.Since(start))
	return res, nil
}

func transformOf(res *kgclient.QueryResult) *quantize.Params {
	if res.Header == nil {
		return nil
	}
	return res.Header.Transform
}

// envelopes returns the spatial filter a cached result depends on; nil
// means the whole entity type.
func (s *Server) envelopes(layer *schema.Layer, params model.QueryParams) []model.BBox {
	if layer.IsTable() {
		return nil
	}
	envs, err := cypher.Envelopes(params)
	if err != nil {
		return nil
	}
	return envs
}

func (s *Server) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *Server) cachePut(ctx context.Context, e cache.Entry, payload any) {
	if s.cache == nil {
		return
	}
	b, err := composer.Encode(payload, composer.FormatGeoJSON)
	if err != nil {
		s.logger.WarnContext(ctx, "cache encode failed", "err", err)
		return
	}
	e.Body = b
	if err := s.cache.Put(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "cache put failed", "key", e.Key, "err", err)
	}
}
