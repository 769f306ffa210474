package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/composer"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgserver"
	mylog "github.com/mohammed-shakir/kg-feature-bridge/internal/logger"
)

const maxWhereLen = 4096

// DataProvider answers parsed requests.
type DataProvider interface {
	GetData(ctx context.Context, req model.Request) (kgserver.Result, error)
}

type statusCoder interface {
	StatusCode() int
}

// HandleRequest parses a feature-service request, asks p for the data and
// writes it in the negotiated format. route labels the request metrics.
func HandleRequest(logger *slog.Logger, route string, p DataProvider) http.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseQueryRequest(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err.Error())
			return
		}
		ctx := mylog.WithService(r.Context(), req.Service)

		res, err := p.GetData(ctx, req)
		if err != nil {
			code := http.StatusInternalServerError
			var sc statusCoder
			if errors.As(err, &sc) {
				code = sc.StatusCode()
			}
			writeError(sw, code, err.Error())
			return
		}

		out, err := composer.Compose(composer.Request{
			Payload:      res.Payload,
			Cached:       res.Cached,
			AcceptHeader: r.Header.Get("Accept"),
			OutputFormat: req.Query.Format,
		})
		if err != nil {
			logger.ErrorContext(ctx, "compose failed", "err", err)
			writeError(sw, http.StatusInternalServerError, "compose error: "+err.Error())
			return
		}
		if res.Cached != nil {
			sw.Header().Set("X-Cache", string(out.HitClass))
		}
		logger.DebugContext(mylog.WithHitClass(ctx, string(out.HitClass)), "request served",
			"layer", req.Layer, "method", req.Method, "bytes", len(out.Body), "duration", time.Since(start).String())
		sw.Header().Set("Content-Type", out.ContentType)
		sw.WriteHeader(out.StatusCode)
		_, _ = sw.Write(out.Body)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ParseQueryRequest reads the service, layer and method path parameters and
// the query parameters the bridge honours.
func ParseQueryRequest(r *http.Request) (model.Request, error) {
	v := r.URL.Query()
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }

	q := model.NewQueryParams()
	q.Where = get("where")
	q.ObjectIDs = get("objectIds")
	q.Geometry = get("geometry")
	q.GeometryType = get("geometryType")
	q.InSR = get("inSR")
	q.SpatialRel = get("spatialRel")
	q.Token = get("token")
	q.Format = get("f")

	if len(q.Where) > maxWhereLen {
		return model.Request{}, fmt.Errorf("where longer than %d characters", maxWhereLen)
	}

	var err error
	if q.ReturnIDsOnly, err = parseBool(get("returnIdsOnly")); err != nil {
		return model.Request{}, fmt.Errorf("returnIdsOnly: %w", err)
	}
	if q.ReturnCountOnly, err = parseBool(get("returnCountOnly")); err != nil {
		return model.Request{}, fmt.Errorf("returnCountOnly: %w", err)
	}
	if s := get("resultRecordCount"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return model.Request{}, fmt.Errorf("resultRecordCount: %q is not a non-negative integer", s)
		}
		q.ResultRecordCount = n
	}
	if s := get("relationshipId"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return model.Request{}, fmt.Errorf("relationshipId: %q is not a non-negative integer", s)
		}
		q.RelationshipID = n
	}

	return model.Request{
		Service: chi.URLParam(r, "service"),
		Layer:   chi.URLParam(r, "layer"),
		Method:  chi.URLParam(r, "method"),
		Query:   q,
	}, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("parse bool %q: %w", s, err)
	}
	return b, nil
}
