// Package metrics owns the registry served on the metrics listener: runtime
// collectors, the bridge's process info and whatever observability registers.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version  string
	Revision string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	// Instance is the INSTANCE_ID of this bridge, also used to skip its own
	// change events on Kafka.
	Instance string
	Sources  []string
	Build    BuildInfo
}

type Provider struct {
	reg *prometheus.Registry
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kg_bridge_process_info",
			Help: "Version and instance of the running bridge (value is always 1).",
		},
		[]string{"version", "revision", "instance", "go_version"},
	)
	sources := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kg_bridge_configured_source",
			Help: "Knowledge graph services served by this bridge (value is always 1).",
		},
		[]string{"service"},
	)
	reg.MustRegister(info, sources)

	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	info.WithLabelValues(v.Version, v.Revision, cfg.Instance, runtime.Version()).Set(1)
	for _, s := range cfg.Sources {
		sources.WithLabelValues(s).Set(1)
	}

	return &Provider{reg: reg}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
