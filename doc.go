// Package vektor is an embeddable vector database for Go: durable record
// storage with approximate nearest-neighbor search over embeddings.
//
// Records are keyed by a caller-chosen external id and carry a float32
// vector plus free-form scalar metadata. Vectors are unit-normalized on
// write, so similarity is cosine similarity computed as a dot product.
//
// # Architecture
//
// The record store (SQLite, or in-memory for ephemeral use) is the source
// of truth; the HNSW index is a rebuildable cache over it. Every mutation
// updates both, and recovery restores the index from a snapshot or a full
// store scan, so a crash can never lose an acknowledged write.
//
// # Usage
//
//	db, err := vektor.Open(ctx, 384, vektor.WithDataDir("./data"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	_, err = db.Upsert(ctx, "doc1", embedding, model.Metadata{"lang": "en"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	hits, err := db.Search(ctx, query, 10,
//		vektor.WithFilters(map[string]any{"lang": "en"}),
//	)
//
// Deletes are logical: the index keeps a tombstone that occupies capacity
// until an explicit Compact rebuilds it.
package vektor
