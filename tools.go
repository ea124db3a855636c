//go:build tools

// Package-less tools file: pins the lint/codegen toolchain as module
// dependencies without shipping them in the runtime build, the standard
// "tools dependency" idiom. Grounded on smoynes-elsie/go.mod's
// golang.org/x/lint and golang.org/x/tools requirements (used there for
// linting and the internal/monitor code generator).
package tools

import (
	_ "golang.org/x/lint/golint"
	_ "golang.org/x/tools/cmd/stringer"
)
