package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           glowrs API
// @version         1.0
// @description     OpenAI compatible sentence embeddings server. One worker thread per model.
//
// @BasePath  /
//
// @schemes http
