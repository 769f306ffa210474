// Package config reads the bridge settings from the environment.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source is one knowledge graph service exposed as /{Name}/FeatureServer.
type Source struct {
	Name  string
	URL   string
	Token string
}

type CacheCfg struct {
	Enabled      bool
	RedisAddr    string
	TTLDefault   time.Duration
	TTLOverrides map[string]time.Duration
	OpTimeout    time.Duration
	H3Res        int
	MaxCells     int
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type EditEventsCfg struct {
	Enabled   bool
	Topic     string
	QueueSize int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	RoutePrefix     string
	InstanceID      string
	Sources         []Source
	Referer         string
	SpatialLenient  bool
	FilterCacheSize int
	UpstreamTimeout time.Duration
	Cache           CacheCfg
	Invalidation    InvalidationCfg
	EditEvents      EditEventsCfg
	Metrics         MetricsCfg
}

func FromEnv() Config {
	res := getint("CACHE_H3_RES", 7)
	if res < 0 || res > 15 {
		res = 7
	}
	instance := getenv("INSTANCE_ID", hostname())
	topic := getenv("KAFKA_TOPIC", "kg-invalidation")

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		RoutePrefix:     normalizePrefix(getenv("ROUTE_PREFIX", "")),
		InstanceID:      instance,
		Sources:         parseSources(getenv("KG_SOURCES", ""), getenv("KG_TOKENS", "")),
		Referer:         getenv("KG_REFERER", ""),
		SpatialLenient:  getbool("SPATIAL_FILTER_LENIENT", false),
		FilterCacheSize: getint("FILTER_CACHE_SIZE", 1024),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 30*time.Second),
		Cache: CacheCfg{
			Enabled:      getbool("CACHE_ENABLED", false),
			RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
			TTLDefault:   getduration("CACHE_TTL_DEFAULT", 60*time.Second),
			TTLOverrides: parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
			OpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			H3Res:        res,
			MaxCells:     getint("CACHE_MAX_CELLS", 512),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   topic,
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "kg-bridge-"+instance),
		},
		EditEvents: EditEventsCfg{
			Enabled:   getbool("EDIT_EVENTS_ENABLED", false),
			Topic:     getenv("EDIT_EVENTS_TOPIC", topic),
			QueueSize: getint("EDIT_EVENTS_QUEUE", 1024),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "kg-bridge"
}

// normalizePrefix returns "" or a path starting with "/" and no trailing "/".
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// parseSources joins "name=url" pairs with "name=token" pairs, sorted by
// name. Entries without a URL are dropped.
func parseSources(urls, tokens string) []Source {
	toks := parseKV(tokens)
	var out []Source
	for name, u := range parseKV(urls) {
		if u == "" {
			continue
		}
		out = append(out, Source{Name: name, URL: u, Token: toks[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a=x,b=y" into map; the value may itself contain "="
func parseKV(s string) map[string]string {
	out := map[string]string{}
	for p := range strings.SplitSeq(strings.TrimSpace(s), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// parse "Well=5m,Field=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for k, v := range parseKV(s) {
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
