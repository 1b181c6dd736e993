package types

// Model is one entry of GET /v1/models.
type Model struct {
	// Logical model name (owner/model).
	// example: jinaai/jina-embeddings-v2-small-en
	ID string `json:"id" example:"jinaai/jina-embeddings-v2-small-en"`
	// Always "model".
	// example: model
	Object string `json:"object" example:"model"`
	// Time the model finished loading (unix seconds).
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// Repository owner.
	// example: jinaai
	OwnedBy string `json:"owned_by" example:"jinaai"`
}

// ModelsResponse wraps the list of models returned by GET /v1/models.
type ModelsResponse struct {
	// Always "list".
	// example: list
	Object string `json:"object" example:"list"`
	// Loaded models, sorted by ID.
	Data []Model `json:"data"`
}
