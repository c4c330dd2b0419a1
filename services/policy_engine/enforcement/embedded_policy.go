// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
This file bridges the build system and the runtime policy logic. It uses the
Go embed package to bake role_permissions.yaml directly into the compiled
binary, so the permission matrix is immutable at runtime and travels with the
executable.
*/

package enforcement

import (
	_ "embed"
)

// RolePermissions holds the raw byte content of the 'role_permissions.yaml'
// file.
//
// The variable is populated at compile time via the Go 'embed' directive.
// Baking the YAML into the binary guarantees the permission matrix cannot be
// tampered with on the host filesystem without recompiling the application.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.RolePermissions, &targetStruct)
//
//go:embed role_permissions.yaml
var RolePermissions []byte
