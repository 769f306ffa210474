package kafkaconsumer

import (
	"strings"
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	Self                string // events with this source were already applied locally
	LogLevel            string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// NewConfig fills the group timings with the defaults used in production.
func NewConfig(brokers, topic, groupID string) Config {
	return Config{
		Brokers:          SplitCSV(brokers),
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		DedupeSize:       4096,
	}
}

func SplitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
