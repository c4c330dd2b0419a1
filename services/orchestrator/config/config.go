// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the orchestrator configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional YAML file
// named by SEOCHO_CONFIG, then environment variables. Deployments normally
// use only the environment; the YAML layer exists for local development
// where a dozen exports get unwieldy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full orchestrator configuration.
type Config struct {
	Port string `yaml:"port"`

	Neo4jURI      string        `yaml:"neo4j_uri"`
	Neo4jUser     string        `yaml:"neo4j_user"`
	Neo4jPassword string        `yaml:"neo4j_password"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	WorkspaceID string   `yaml:"workspace_id"`
	Databases   []string `yaml:"databases"`
	HintsPath   string   `yaml:"hints_path"`
	SessionPath string   `yaml:"session_path"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	AgentTimeout   time.Duration `yaml:"agent_timeout"`
	Grace          time.Duration `yaml:"grace"`
	ProbeTTL       time.Duration `yaml:"probe_ttl"`
	Parallelism    int           `yaml:"parallelism"`
	CacheCapacity  int           `yaml:"cache_capacity"`
	MaxInFlight    int           `yaml:"max_in_flight"`

	OTELEndpoint string `yaml:"otel_endpoint"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:           "12210",
		Neo4jUser:      "neo4j",
		QueryTimeout:   10 * time.Second,
		OpenAIModel:    "gpt-4o-mini",
		WorkspaceID:    "default",
		SessionPath:    "/var/lib/seocho/sessions",
		RequestTimeout: 120 * time.Second,
		AgentTimeout:   60 * time.Second,
		Grace:          1 * time.Second,
		ProbeTTL:       30 * time.Second,
		Parallelism:    8,
		CacheCapacity:  100,
		MaxInFlight:    200,
	}
}

// Load builds the effective configuration from defaults, the optional
// YAML file, and the environment.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SEOCHO_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "ORCHESTRATOR_PORT")
	setString(&cfg.Neo4jURI, "NEO4J_URI")
	setString(&cfg.Neo4jUser, "NEO4J_USER")
	setString(&cfg.Neo4jPassword, "NEO4J_PASSWORD")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.WorkspaceID, "WORKSPACE_ID")
	setString(&cfg.HintsPath, "ONTOLOGY_HINTS_PATH")
	setString(&cfg.SessionPath, "SESSION_STORE_PATH")
	setString(&cfg.OTELEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setDuration(&cfg.QueryTimeout, "GRAPH_QUERY_TIMEOUT")
	setDuration(&cfg.RequestTimeout, "REQUEST_TIMEOUT")
	setDuration(&cfg.AgentTimeout, "AGENT_TIMEOUT")
	setDuration(&cfg.ProbeTTL, "SCHEMA_PROBE_TTL")

	setInt(&cfg.Parallelism, "DEBATE_PARALLELISM")
	setInt(&cfg.CacheCapacity, "CACHE_CAPACITY")
	setInt(&cfg.MaxInFlight, "MAX_IN_FLIGHT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
