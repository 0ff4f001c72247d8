package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	if err != nil {
		printError(&stderr, err)
	}
	return stdout.String(), stderr.String(), err
}

func TestRun(t *testing.T) {
	stdout, _, err := execute(t, "run", "testdata/sum.box")
	require.Nil(t, err)
	require.Equal(t, "55\n", stdout)
}

func TestRunDump(t *testing.T) {
	stdout, _, err := execute(t, "run", "--dump", "testdata/sum.box")
	require.Nil(t, err)
	require.Equal(t, "55\ngi0 = 55\ngi1 = 55\n", stdout)
}

func TestRunEntry(t *testing.T) {
	stdout, _, err := execute(t, "run", "--entry", "show", "testdata/sum.box")
	require.Nil(t, err)
	require.Equal(t, "0\n", stdout)

	_, stderr, err := execute(t, "run", "--entry", "nope", "testdata/sum.box")
	require.NotNil(t, err)
	require.Contains(t, stderr, `no procedure named "nope"`)
}

func TestRunEntryFromEnvironment(t *testing.T) {
	t.Setenv("BOXVM_ENTRY", "show")
	stdout, _, err := execute(t, "run", "testdata/sum.box")
	require.Nil(t, err)
	require.Equal(t, "0\n", stdout)
}

func TestRunTrace(t *testing.T) {
	_, stderr, err := execute(t, "run", "--trace", "testdata/sum.box")
	require.Nil(t, err)
	require.Contains(t, stderr, "-> main")
	require.Contains(t, stderr, "main+0\tline 5")
	require.Contains(t, stderr, "-> print.i (native)")
	require.Contains(t, stderr, "<- show")
}

func TestRunTraceLines(t *testing.T) {
	_, stderr, err := execute(t, "run", "--trace-lines", "testdata/sum.box")
	require.Nil(t, err)
	require.Contains(t, stderr, "main line 6")
	require.Contains(t, stderr, "show line 17")
	require.NotContains(t, stderr, "add.i")
}

func TestRunFailure(t *testing.T) {
	_, stderr, err := execute(t, "run", "testdata/fail.box")
	require.NotNil(t, err)
	require.Contains(t, stderr, "failure")
	require.Contains(t, stderr, "at check")
	require.Contains(t, stderr, "at main")
}

func TestSyntaxError(t *testing.T) {
	_, stderr, err := execute(t, "run", "testdata/bad.box")
	require.NotNil(t, err)
	require.Contains(t, stderr, `syntax error: unknown instruction "frob"`)
	require.Contains(t, stderr, " --> testdata/bad.box:2:5")
	require.Contains(t, stderr, " 2 |     frob gi1")
}

func TestMissingFile(t *testing.T) {
	_, _, err := execute(t, "run", "testdata/missing.box")
	require.NotNil(t, err)
}

func TestDisassemble(t *testing.T) {
	stdout, _, err := execute(t, "dis", "testdata/sum.box")
	require.Nil(t, err)
	require.Contains(t, stdout, "main:\n")
	require.Contains(t, stdout, "\nshow:\n")
	require.Contains(t, stdout, "ri1, 10")
	require.Contains(t, stdout, "gi0, gi1")
}

func TestDisassembleOneProc(t *testing.T) {
	stdout, _, err := execute(t, "dis", "--proc", "show", "testdata/sum.box")
	require.Nil(t, err)
	require.NotContains(t, stdout, "main:")
	require.Contains(t, stdout, "show:\n")

	_, _, err = execute(t, "dis", "--proc", "nope", "testdata/sum.box")
	require.NotNil(t, err)
}

func TestDisassembleStats(t *testing.T) {
	stdout, _, err := execute(t, "dis", "--stats", "--proc", "show", "testdata/sum.box")
	require.Nil(t, err)
	require.Contains(t, stdout, "; 6 instructions (")
}
