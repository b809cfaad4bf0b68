package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "ollama"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	VectorSize      int     `yaml:"vector_size"`
	TopK            int     `yaml:"top_k"`
	SimilarityFloor float64 `yaml:"similarity_floor"`
	VectorWeight    float64 `yaml:"vector_weight"`
	LexicalWeight   float64 `yaml:"lexical_weight"`
	Concurrency     int     `yaml:"concurrency"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	RAG      RAGConfig      `yaml:"rag"`
}

const (
	defaultVectorSize      = 1536
	defaultTopK            = 5
	defaultSimilarityFloor = 0.7
	defaultVectorWeight    = 0.7
	defaultLexicalWeight   = 0.3
	defaultConcurrency     = 4
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.RAG.VectorSize == 0 {
		c.RAG.VectorSize = defaultVectorSize
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.SimilarityFloor == 0 {
		c.RAG.SimilarityFloor = defaultSimilarityFloor
	}
	if c.RAG.VectorWeight == 0 {
		c.RAG.VectorWeight = defaultVectorWeight
	}
	if c.RAG.LexicalWeight == 0 {
		c.RAG.LexicalWeight = defaultLexicalWeight
	}
	if c.RAG.Concurrency == 0 {
		c.RAG.Concurrency = defaultConcurrency
	}
}

// Validate reports missing credentials before the first provider call
// instead of during it.
func (c *Config) Validate() error {
	if c.EmbedLLM.Model == "" {
		return fmt.Errorf("config: embed_llm.model is required")
	}
	if c.ChatLLM.Model == "" {
		return fmt.Errorf("config: chat_llm.model is required")
	}
	if c.EmbedLLM.Provider == "openai" && c.EmbedLLM.Key == "" {
		return fmt.Errorf("config: embed_llm.key is required for openai provider")
	}
	if c.ChatLLM.Provider == "openai" && c.ChatLLM.Key == "" {
		return fmt.Errorf("config: chat_llm.key is required for openai provider")
	}
	return nil
}
