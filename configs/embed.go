// Package configs embeds the configuration template written by
// `amanrag init`.
//
// Precedence when loading (see internal/config Load):
//  1. defaults (NewConfig)
//  2. user config (~/.config/amanrag/config.yaml)
//  3. project config (.amanrag.yaml, .amanrag.yml or .amanrag.toml)
//  4. .env in the project directory
//  5. environment variables (AMANRAG_*, OPENAI_API_KEY, NEO4J_*, RERANK_*, QDRANT_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .amanrag.yaml written by `amanrag init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
