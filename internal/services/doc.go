// Package services wires configuration into ready-to-use helpdesk services.
//
// NewIndexing builds what the index commands need (embeddings, vector store,
// indexer). New additionally opens the keyword index, builds the retrieval
// tool registry and the model client, and connects the NATS event publisher
// when enabled. Any field set in Options is used as-is instead of being
// built, which is how tests inject fakes.
package services
