// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tteon/seocho/services/llm"
	"github.com/tteon/seocho/services/orchestrator/tracing"
)

// Agent is a database-scoped, tool-using executor with fixed instructions
// and a bound tool set. Agents are immutable after construction; schema
// changes produce a replacement agent, never a mutation.
type Agent struct {
	ID           string
	Name         string
	Database     string
	Instructions string
	Tools        *ToolSet
}

// ToolInvocation records one executed tool call for trace metadata.
type ToolInvocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	Error     string `json:"error,omitempty"`
	CacheHit  bool   `json:"cache_hit,omitempty"`
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	Text      string           `json:"text"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Usage     llm.Usage        `json:"usage"`
}

// maxToolTurns bounds the tool-use loop so a confused model cannot spin.
const maxToolTurns = 8

// Runner executes agent runs against an LLM backend.
//
// Runner is the uniform adapter over the model SDK: the rest of the
// codebase calls only Run, regardless of how the backend names its
// parameters or shapes its tool API.
type Runner struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewRunner creates a Runner over the given backend.
func NewRunner(client llm.LLMClient) *Runner {
	return &Runner{client: client}
}

// NewRunnerWithParams creates a Runner with fixed generation parameters.
func NewRunnerWithParams(client llm.LLMClient, params llm.GenerationParams) *Runner {
	return &Runner{client: client, params: params}
}

// Run drives the tool-use loop for one agent until the model produces a
// final answer, the turn bound is reached, or ctx is cancelled.
//
// Tool failures are isolated: the error text is returned to the model as
// the tool output and recorded on the invocation, so a single bad call
// does not fail the run. Cancellation is cooperative and checked before
// every model call and every tool dispatch.
func (r *Runner) Run(ctx context.Context, agent *Agent, prompt string, rc *RunContext) (*RunResult, error) {
	if agent == nil {
		return nil, fmt.Errorf("runtime: agent is required")
	}
	if rc == nil {
		rc = &RunContext{}
	}

	ctx, span := tracing.StartSpan(ctx, "agent.run",
		attribute.String("agent", agent.Name),
		attribute.String("database", agent.Database),
	)
	defer span.End()

	messages := []llm.Message{
		{Role: "system", Content: agent.Instructions},
		{Role: "user", Content: prompt},
	}
	var schemas []llm.ToolSchema
	if agent.Tools != nil {
		schemas = agent.Tools.Schemas()
	}

	result := &RunResult{}
	for turn := 0; turn < maxToolTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("runtime: run cancelled: %w", err)
		}

		reply, err := r.client.Chat(ctx, messages, schemas, r.params)
		if err != nil {
			return nil, fmt.Errorf("runtime: model call failed: %w", err)
		}
		result.Usage.PromptTokens += reply.Usage.PromptTokens
		result.Usage.CompletionTokens += reply.Usage.CompletionTokens
		result.Usage.TotalTokens += reply.Usage.TotalTokens

		if len(reply.ToolCalls) == 0 {
			result.Text = reply.Content
			span.SetAttributes(attribute.Int("tool_calls", len(result.ToolCalls)))
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		for _, call := range reply.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("runtime: run cancelled: %w", err)
			}
			invocation := r.dispatch(ctx, agent, rc, call)
			result.ToolCalls = append(result.ToolCalls, invocation)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    invocation.Result,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("runtime: agent %s exceeded %d tool turns", agent.Name, maxToolTurns)
}

// dispatch executes one tool call with its own span. Errors become the
// tool output so the model can recover.
func (r *Runner) dispatch(ctx context.Context, agent *Agent, rc *RunContext, call llm.ToolCall) ToolInvocation {
	invocation := ToolInvocation{Name: call.Name, Arguments: call.Arguments}

	ctx, span := tracing.StartSpan(ctx, "tool."+call.Name,
		attribute.String("agent", agent.Name),
		attribute.String("database", agent.Database),
	)
	defer span.End()

	tool, ok := agent.Tools.Get(call.Name)
	if !ok {
		invocation.Error = fmt.Sprintf("unknown tool %q", call.Name)
		invocation.Result = "Error: " + invocation.Error
		return invocation
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		invocation.Error = err.Error()
		invocation.Result = "Error: " + invocation.Error
		return invocation
	}

	var cacheHit bool
	output, err := tool.Fn(withCacheFlag(ctx, &cacheHit), rc, args)
	if err != nil {
		slog.Warn("tool execution failed",
			"tool", call.Name, "agent", agent.Name, "error", err)
		invocation.Error = err.Error()
		invocation.Result = "Error: " + invocation.Error
		span.SetAttributes(attribute.Bool("tool_error", true))
		return invocation
	}

	invocation.Result = output
	invocation.CacheHit = cacheHit
	if cacheHit {
		span.SetAttributes(attribute.String("cache", "hit"))
	}
	return invocation
}

// cacheHitKey threads cache-hit reporting from a tool back to its span
// without widening the ToolFunc signature.
type cacheHitKey struct{}

func withCacheFlag(ctx context.Context, flag *bool) context.Context {
	return context.WithValue(ctx, cacheHitKey{}, flag)
}

// MarkCacheHit flags the current tool invocation as served from
// SharedMemory; the runner reports it as cache=hit in span metadata.
func MarkCacheHit(ctx context.Context) {
	if flag, ok := ctx.Value(cacheHitKey{}).(*bool); ok && flag != nil {
		*flag = true
	}
}
