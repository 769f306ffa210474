// Package kgclient talks to a knowledge graph service over its protobuf wire
// protocol: data model fetches, streamed graph queries and edit submission.
package kgclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
)

// maxBody caps how much of a response is buffered before decoding.
const maxBody = 256 << 20

type Client struct {
	logger   *slog.Logger
	http     *http.Client
	referer  string
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, hc *http.Client, referer string) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{logger: logger, http: hc, referer: referer, startNow: time.Now}
}

// QueryResult is a decoded graph query response. Rows from every frame are
// concatenated in arrival order.
type QueryResult struct {
	Header *kgpb.QueryResultHeader
	Rows   []kgpb.Row
	Frames int
}

type jsonError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type jsonEnvelope struct {
	Error *jsonError `json:"error"`
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "application/json")
	}
	return mt == "application/json"
}

// response is a fully buffered upstream reply.
type response struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) do(ctx context.Context, op, method, url string, body []byte) (*response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, kgerr.Wrap(kgerr.KindTransport, op, fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	start := c.startNow()
	resp, err := c.http.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency(op, dur.Seconds())
	if err != nil {
		return nil, kgerr.Wrap(kgerr.KindTransport, op, fmt.Errorf("upstream request: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close upstream body", "op", op, "err", cerr)
		}
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, kgerr.Wrap(kgerr.KindTransport, op, fmt.Errorf("read body: %w", err))
	}
	c.logger.Debug("upstream done",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(b),
		"duration", dur.String())

	r := &response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: b}
	if r.status >= 400 && !isJSON(r.contentType) {
		return nil, &kgerr.Error{
			Kind: kgerr.KindTransport,
			Op:   op,
			Msg:  fmt.Sprintf("upstream status %d", r.status),
			Code: r.status,
		}
	}
	return r, nil
}

// FetchSchema retrieves and decodes the service's data model.
func (c *Client) FetchSchema(ctx context.Context, url string) (*kgpb.DataModel, error) {
	const op = "fetch schema"
	r, err := c.do(ctx, "schema", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if isJSON(r.contentType) {
		e := &kgerr.Error{Kind: kgerr.KindSchemaFetch, Op: op, Payload: r.body, Msg: "service returned an error payload"}
		var env jsonEnvelope
		if json.Unmarshal(r.body, &env) == nil && env.Error != nil {
			e.Code = env.Error.Code
			if env.Error.Message != "" {
				e.Msg = env.Error.Message
			}
		}
		return nil, e
	}
	dm, err := kgpb.DecodeDataModel(r.body)
	if err != nil {
		return nil, kgerr.Wrap(kgerr.KindDecode, op, err)
	}
	if dm.GlobalIDProperty == "" {
		return nil, kgerr.New(kgerr.KindSchemaFetch, op, "data model has no global id property")
	}
	return dm, nil
}

// ExecuteQuery runs a graph query and decodes the streamed result. When a frame
// carries a server error, decoding stops and the rows read so far are returned
// together with a GraphQueryError.
func (c *Client) ExecuteQuery(ctx context.Context, url string) (*QueryResult, error) {
	const op = "execute query"
	r, err := c.do(ctx, "query", http.MethodGet, url, nil)
	if err != nil {
		observability.IncGraphError(kgerr.KindOf(err).String())
		return nil, err
	}
	if isJSON(r.contentType) {
		e := &kgerr.Error{Kind: kgerr.KindGraphQuery, Op: op, Payload: r.body, Msg: "graph query failed"}
		var env jsonEnvelope
		if json.Unmarshal(r.body, &env) == nil && env.Error != nil {
			e.Code = env.Error.Code
			if env.Error.Message != "" {
				e.Msg = env.Error.Message
			}
		}
		observability.IncGraphError(e.Kind.String())
		return nil, e
	}

	res, err := DecodeQueryStream(r.body)
	observability.ObserveGraphFrames(res.Frames, len(res.Rows), err != nil)
	if err != nil {
		observability.IncGraphError(kgerr.KindOf(err).String())
		c.logger.Warn("graph query returned an error",
			"err", err,
			"frames", res.Frames,
			"rows", len(res.Rows))
	}
	return res, err
}

// DecodeQueryStream decodes a delimited header followed by delimited frames.
// When the header does not decode the buffer is re-read from the start as a
// frame stream, which is how errors sent without a header surface.
func DecodeQueryStream(buf []byte) (*QueryResult, error) {
	const op = "decode query"
	res := &QueryResult{}
	rest := buf

	if msg, n, err := kgpb.ConsumeDelimited(rest); err == nil {
		if h, herr := kgpb.DecodeQueryResultHeader(msg); herr == nil {
			if h.Error != nil {
				return res, graphError(op, h.Error)
			}
			res.Header = h
			rest = rest[n:]
		}
	}

	for len(rest) > 0 {
		msg, n, err := kgpb.ConsumeDelimited(rest)
		if err != nil {
			return res, kgerr.Wrap(kgerr.KindDecode, op, err)
		}
		frame, err := kgpb.DecodeQueryResultFrame(msg)
		if err != nil {
			return res, kgerr.Wrap(kgerr.KindDecode, op, err)
		}
		rest = rest[n:]
		if frame.Error != nil {
			return res, graphError(op, frame.Error)
		}
		res.Frames++
		res.Rows = append(res.Rows, frame.Rows...)
	}
	return res, nil
}

func graphError(op string, e *kgpb.Error) error {
	msg := e.Message
	if msg == "" {
		msg = "graph query failed"
	}
	return &kgerr.Error{Kind: kgerr.KindGraphQuery, Op: op, Msg: msg, Code: int(e.Code)}
}
