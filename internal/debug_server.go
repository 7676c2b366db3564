package internal

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgraph-io/badger/v4"

	"messenger/observability"
)

// StartDebugServer exposes a read-only JSON inspection endpoint: pipeline
// counters plus key counts per storage namespace. It never reads values, so
// no ciphertext or key material leaves the database through it.
func StartDebugServer(db *badger.DB, metrics *observability.Metrics, port int, endpoint string) {
	mux := http.NewServeMux()

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		payload := struct {
			Metrics observability.Snapshot `json:"metrics"`
			Keys    map[string]int         `json:"keys"`
		}{
			Metrics: metrics.Snapshot(),
			Keys:    CountKeys(db),
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("localhost:%d", port), mux)
	}()
}

// CountKeys tallies keys per namespace (the part before the first colon).
func CountKeys(db *badger.DB) map[string]int {
	counts := make(map[string]int)
	_ = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			namespace := string(key)
			for i, b := range key {
				if b == ':' {
					namespace = string(key[:i])
					break
				}
			}
			counts[namespace]++
		}
		return nil
	})
	return counts
}
