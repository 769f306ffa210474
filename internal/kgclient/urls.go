package kgclient

import (
	"net/url"
	"strings"
)

func endpoint(base, path string, q url.Values) string {
	return strings.TrimRight(base, "/") + path + "?" + q.Encode()
}

func pbfValues(token string) url.Values {
	q := url.Values{}
	q.Set("f", "pbf")
	if token != "" {
		q.Set("token", token)
	}
	return q
}

// SchemaURL is the data model endpoint of a knowledge graph service.
func SchemaURL(base, token string) string {
	return endpoint(base, "/dataModel/queryDataModel", pbfValues(token))
}

// QueryURL embeds the openCypher text in a graph query request.
func QueryURL(base, cypher, token string) string {
	q := pbfValues(token)
	q.Set("openCypherQuery", cypher)
	return endpoint(base, "/graph/query", q)
}

func ApplyEditsURL(base, token string) string {
	return endpoint(base, "/graph/applyEdits", pbfValues(token))
}
