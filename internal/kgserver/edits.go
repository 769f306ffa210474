package kgserver

import (
	"context"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/composer"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

const editSource = "edit"

// AddEntity creates one entity. Point geometries are quantized with p. On
// success cached results for the entity type are dropped and other instances
// are told to do the same.
func (s *Server) AddEntity(ctx context.Context, e kgclient.NewEntity, p quantize.Params, token string) (*kgpb.ApplyEditsResult, error) {
	c, err := s.loader.DataModel(ctx, token)
	if err != nil {
		return nil, err
	}
	layer, ok := c.ByName(e.TypeName)
	if !ok {
		return nil, kgerr.New(kgerr.KindEdits, "add entity", "unknown entity type "+e.TypeName)
	}
	if e.GeometryField == "" {
		e.GeometryField = layer.GeometryField
	}

	header, frame := kgclient.AddEntityFrame(e, p)
	res, err := s.submit(ctx, header, frame, token)
	if err != nil {
		return res, err
	}
	s.afterEdit(ctx, layer.Name(), addedID(res.EntityResults))
	return res, nil
}

// AddRelationship links two entities by global id.
func (s *Server) AddRelationship(ctx context.Context, origin, destination, relType, token string) (*kgpb.ApplyEditsResult, error) {
	header, frame, err := kgclient.AddRelationshipFrame(origin, destination, relType)
	if err != nil {
		return nil, err
	}
	res, err := s.submit(ctx, header, frame, token)
	if err != nil {
		return res, err
	}
	s.afterEdit(ctx, relType, addedID(res.RelationshipResults))
	return res, nil
}

func (s *Server) submit(ctx context.Context, header *kgpb.ApplyEditsHeader, frame *kgpb.ApplyEditsFrame, token string) (*kgpb.ApplyEditsResult, error) {
	if token == "" {
		token = s.token
	}
	out := s.client.SubmitEdits(ctx, kgclient.ApplyEditsURL(s.url, token), header, frame)
	if out.Err != nil {
		s.logger.WarnContext(ctx, "edit rejected", "err", out.Err)
		return out.Result, out.Err
	}
	return out.Result, nil
}

func (s *Server) afterEdit(ctx context.Context, typeName string, id any) {
	if s.cache != nil {
		if _, err := s.cache.InvalidateEntity(ctx, s.name, typeName, editSource); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation after edit failed", "type", typeName, "err", err)
		}
	}
	if s.events != nil {
		s.events.Publish("insert", s.name, typeName, id)
	}
}

func addedID(results []kgpb.TypedEditResults) any {
	for _, r := range results {
		for _, a := range r.AddResults {
			if a.ID != nil && a.Error == nil {
				return composer.ToValue(*a.ID)
			}
		}
	}
	return nil
}
