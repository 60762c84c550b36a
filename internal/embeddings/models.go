package embeddings

const defaultFastEmbedModel = "BAAI/bge-small-en-v1.5"

// fastEmbedModelDimension returns dimensions for known local models. It is
// build-tag independent so configuration can be validated without cgo.
func fastEmbedModelDimension(model string) (int, bool) {
	dims := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-small-en":                      384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-base-en":                       768,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
	}
	dim, ok := dims[model]
	return dim, ok
}
