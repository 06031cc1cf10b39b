// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/testutil"
	"github.com/invowk/userpack/pkg/metadata"
)

// runCLI executes the command tree with r as every command's resolver. A nil
// r keeps the production resolver.
func runCLI(t *testing.T, r *testutil.Resolver, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	deps := Dependencies{Stdout: &out, Stderr: &errOut}
	if r != nil {
		deps.Resolver = func(*config.Config, *slog.Logger) metadata.LinkResolver { return r }
	}
	root := NewRootCommand(NewApp(deps))
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}
