// Package cypher translates feature-service query parameters into openCypher.
package cypher

import (
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/schema"
)

const ns = "n"

type Options struct {
	// Lenient drops an unusable spatial filter instead of failing the query.
	Lenient   bool
	CacheSize int
}

// Translator builds query text. It is safe for concurrent use.
type Translator struct {
	logger  *slog.Logger
	lenient bool
	filters *lru.Cache[string, string]
}

func New(logger *slog.Logger, opts Options) *Translator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Translator{logger: logger.With("component", "cypher"), lenient: opts.Lenient}
	if opts.CacheSize > 0 {
		t.filters, _ = lru.New[string, string](opts.CacheSize)
	}
	return t
}

func isTrivial(where string) bool {
	w := strings.ReplaceAll(strings.TrimSpace(where), " ", "")
	return w == "" || w == "1=1"
}

// filter returns the translated where expression for params, or "".
func (t *Translator) filter(params model.QueryParams) (string, error) {
	where := params.Where
	if strings.TrimSpace(params.ObjectIDs) != "" {
		w, err := objectIDFilter(params.ObjectIDs)
		if err != nil {
			return "", err
		}
		where = w
	} else if isTrivial(where) {
		return "", nil
	}
	if where == "" {
		return "", nil
	}

	if t.filters != nil {
		if out, ok := t.filters.Get(where); ok {
			observability.IncFilterCache(true)
			return out, nil
		}
		observability.IncFilterCache(false)
	}
	out, err := TranslateWhere(where, ns)
	if err != nil {
		return "", err
	}
	if t.filters != nil {
		t.filters.Add(where, out)
	}
	return out, nil
}

// whereClause renders the attribute and spatial filters, each clause ending in
// a space.
func (t *Translator) whereClause(layer *schema.Layer, params model.QueryParams) (string, error) {
	var b strings.Builder
	attr, err := t.filter(params)
	if err != nil {
		return "", err
	}
	if attr != "" {
		b.WriteString("where " + attr + " ")
	}

	if strings.TrimSpace(params.Geometry) == "" {
		return b.String(), nil
	}
	if layer.GeometryField == "" {
		t.logger.Debug("spatial filter ignored on table", "entity", layer.Name())
		return b.String(), nil
	}
	pred, err := spatialClause(params, ns, layer.GeometryField)
	if err != nil {
		if !t.lenient {
			return "", err
		}
		t.logger.Warn("spatial filter dropped", "entity", layer.Name(), "err", err)
		return b.String(), nil
	}
	if pred == "" {
		return b.String(), nil
	}
	if attr != "" {
		b.WriteString("and " + pred + " ")
	} else {
		b.WriteString("where " + pred + " ")
	}
	return b.String(), nil
}

func limit(params model.QueryParams) string {
	if !params.HasLimit() {
		return ""
	}
	return " limit " + strconv.Itoa(params.ResultRecordCount)
}

// BuildEntityQuery returns the query for a single entity layer.
func (t *Translator) BuildEntityQuery(layer *schema.Layer, params model.QueryParams) (string, error) {
	where, err := t.whereClause(layer, params)
	if err != nil {
		return "", err
	}
	ret := ns
	switch {
	case params.ReturnCountOnly:
		ret = "count(" + ns + ")"
	case params.ReturnIDsOnly:
		ret = ns + ".objectid"
	}
	return "match (" + ns + ":" + layer.Name() + ") " + where + "return " + ret + limit(params), nil
}

// BuildRelationshipQuery returns the query that walks rel from layer to
// related. Edge direction follows the role layer plays in rel.
func (t *Translator) BuildRelationshipQuery(layer, related *schema.Layer, rel schema.Relationship, params model.QueryParams) (string, error) {
	where, err := t.whereClause(layer, params)
	if err != nil {
		return "", err
	}
	edge := "-[r:" + rel.Name + "]->"
	if rel.Role == schema.RoleDestination {
		edge = "<-[r:" + rel.Name + "]-"
	}
	return "match (" + ns + ":" + layer.Name() + ")" + edge + "(m:" + related.Name() + ") " +
		where + "return " + ns + ", m order by " + ns + ".objectid" + limit(params), nil
}
