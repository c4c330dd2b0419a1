// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL   string
	role        string
	workspaceID string
	databases   []string

	rootCmd = &cobra.Command{
		Use:   "seocho",
		Short: "A cli for the SEOCHO multi-agent knowledge graph orchestrator",
		Long: `seocho talks to a running orchestrator service: ask questions
through the semantic flow, run multi-database debates, and inspect
database and agent readiness.`,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question through the semantic flow",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}

	debateCmd = &cobra.Command{
		Use:   "debate [question]",
		Short: "Fan a question out across every database and synthesize one answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runDebateCommand,
	}

	databasesCmd = &cobra.Command{
		Use:   "databases",
		Short: "List the registered graph databases",
		Run:   runDatabasesCommand,
	}

	agentsCmd = &cobra.Command{
		Use:   "agents",
		Short: "Show agent pool readiness",
		Run:   runAgentsCommand,
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Probe every database and report readiness",
		Run:   runHealthCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "orchestrator base URL (default $SEOCHO_SERVER_URL or http://localhost:12210)")
	rootCmd.PersistentFlags().StringVar(&role, "role", "user", "caller role sent as X-User-Role")
	rootCmd.PersistentFlags().StringVar(&workspaceID, "workspace", "", "workspace id (default server-side)")
	rootCmd.PersistentFlags().StringSliceVar(&databases, "db", nil, "restrict to these databases (repeatable)")

	rootCmd.AddCommand(askCmd, debateCmd, databasesCmd, agentsCmd, healthCmd)
}
