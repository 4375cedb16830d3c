package retriever

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIndexed counts persisted documents.
	// Labels: op (insert, update)
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yorizo",
			Subsystem: "rag",
			Name:      "documents_indexed_total",
			Help:      "Total number of documents written by index calls",
		},
		[]string{"op"},
	)

	// IndexTotal counts index calls.
	// Labels: result (success, embedding_unavailable, error)
	IndexTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yorizo",
			Subsystem: "rag",
			Name:      "index_calls_total",
			Help:      "Total number of index calls by result",
		},
		[]string{"result"},
	)

	// QueryTotal counts similarity queries.
	// Labels: result (success, empty, embedding_unavailable, error)
	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yorizo",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total number of similarity queries by result",
		},
		[]string{"result"},
	)

	// QueryDuration tracks end-to-end query latency including embedding.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yorizo",
			Subsystem: "rag",
			Name:      "query_duration_seconds",
			Help:      "Duration of similarity queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CandidatesSkipped counts rows dropped before scoring.
	// Labels: reason (collection, owner, company, no_embedding)
	CandidatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yorizo",
			Subsystem: "rag",
			Name:      "candidates_skipped_total",
			Help:      "Total number of candidate rows excluded from scoring by reason",
		},
		[]string{"reason"},
	)
)
