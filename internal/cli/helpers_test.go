package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const counterProgram = `
program: "counter"

store: count: {init: 0, sid: "count"}
store: log: {init: [], sid: "log"}

event: inc: {}
event: reset: {}

effect: logFx: {handler: "echo"}
effect: boom: {handler: "fail", message: "nope"}

reducer: [
	{store: "count", on: "inc", op: "add", value: 1},
	{store: "count", on: "reset", op: "reset"},
	{store: "log", on: "logFx.doneData", op: "append"},
]

sample: [{clock: "inc", source: "count", target: "logFx"}]
`

// writeProgram writes src as the only CUE file of a new directory.
func writeProgram(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "program")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "program.cue"), []byte(src), 0o644))
	return dir
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
