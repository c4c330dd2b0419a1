// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tteon/seocho/services/orchestrator/datatypes"
)

func baseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if env := os.Getenv("SEOCHO_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:12210"
}

var httpClient = &http.Client{Timeout: 150 * time.Second}

// call issues one request and decodes the JSON body into out. Non-2xx
// responses are returned as errors carrying the server's error envelope.
func call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, baseURL()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Role", role)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the orchestrator running at %s? %w", baseURL(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var envelope datatypes.ErrorResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("%s (%s)", envelope.Message, envelope.ErrorCode)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// runResult is the subset of the run response the CLI renders.
type runResult struct {
	Response       string         `json:"response"`
	Mode           string         `json:"mode"`
	Route          string         `json:"route"`
	RuntimeControl map[string]any `json:"runtime_control"`
	TraceSteps     []any          `json:"trace_steps"`
}

func runQuestion(path string, args []string) {
	question := strings.Join(args, " ")
	req := datatypes.RunRequest{
		Query:       question,
		Databases:   databases,
		WorkspaceID: workspaceID,
	}

	var result runResult
	if err := call(http.MethodPost, path, req, &result); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Mode: %s", result.Mode)
	if result.Route != "" {
		fmt.Printf("  Route: %s", result.Route)
	}
	fmt.Printf("  Trace: %d steps\n", len(result.TraceSteps))
	if reason, ok := result.RuntimeControl["reason"]; ok {
		fmt.Printf("Note: downgraded (%v)\n", reason)
	}
	fmt.Println("---")
	fmt.Println(result.Response)
}

func runAskCommand(cmd *cobra.Command, args []string) {
	runQuestion("/v1/run_agent_semantic", args)
}

func runDebateCommand(cmd *cobra.Command, args []string) {
	runQuestion("/v1/run_debate", args)
}

func runDatabasesCommand(cmd *cobra.Command, args []string) {
	var out struct {
		Databases []string `json:"databases"`
	}
	if err := call(http.MethodGet, "/v1/databases", nil, &out); err != nil {
		log.Fatalf("Error: %v", err)
	}
	for _, db := range out.Databases {
		fmt.Println(db)
	}
}

func runAgentsCommand(cmd *cobra.Command, args []string) {
	var out struct {
		Readiness map[string][]string       `json:"readiness"`
		Agents    map[string]map[string]any `json:"agents"`
	}
	if err := call(http.MethodGet, "/v1/agents", nil, &out); err != nil {
		log.Fatalf("Error: %v", err)
	}
	for _, state := range []string{"ready", "degraded", "unreachable"} {
		for _, db := range out.Readiness[state] {
			fmt.Printf("%-12s %s\n", state, db)
		}
	}
	if len(out.Agents) == 0 {
		fmt.Println("(no agents created yet)")
	}
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	var out struct {
		Databases []map[string]any    `json:"databases"`
		Readiness map[string][]string `json:"readiness"`
	}
	if err := call(http.MethodGet, "/health/batch", nil, &out); err != nil {
		log.Fatalf("Error: %v", err)
	}
	for _, db := range out.Databases {
		fmt.Printf("%-12v %v", db["status"], db["database"])
		if reason, ok := db["reason"]; ok && reason != "" {
			fmt.Printf("  (%v)", reason)
		}
		fmt.Println()
	}
}
