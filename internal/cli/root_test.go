package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rill", cmd.Use)
	assert.Contains(t, cmd.Long, "events, stores and")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"}, {"run"}, {"test"}, {"serve"}, {"trace"},
		{"snapshot", "list"}, {"snapshot", "show"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dispatchFlag := runCmd.Flags().Lookup("dispatch")
	require.NotNil(t, dispatchFlag)
	assert.Equal(t, "d", dispatchFlag.Shorthand)

	for _, name := range []string{"db", "from", "max-steps"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	addrFlag := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, ":8080", addrFlag.DefValue)

	require.NotNil(t, serveCmd.Flags().Lookup("db"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	require.NotNil(t, traceCmd.Flags().Lookup("db"))
	require.NotNil(t, traceCmd.Flags().Lookup("root"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--format", "xml", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
