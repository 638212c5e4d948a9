package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay"
	"github.com/vsariola/patchbay/cmd"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := cmd.NewRootCommand()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yml")}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPresets(t *testing.T) {
	out, _, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "Simple Bass (built-in)\n")
	assert.Contains(t, out, "Vibrato Pad (built-in)\n")
}

func TestTypes(t *testing.T) {
	out, _, err := execute(t, "types")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^EQ8\s+Filter\s+in \(Signal\), cutoff \(Control\), q \(Control\)\s+out \(Signal\)$`, out)
	assert.Regexp(t, `(?m)^Transport\s+-\s+-\s+clock \(Signal\), bpm \(Signal\), beat \(Signal\)$`, out)
}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, "validate", "Echo Space", "testdata/sequenced.yml")
	require.NoError(t, err)
	assert.Equal(t, "Echo Space: ok\ntestdata/sequenced.yml: ok\n", out)

	out, stderr, err := execute(t, "validate", "testdata/broken.yml", "testdata/unknown.json", "Tremolo")
	require.EqualError(t, err, "2 of 3 presets are invalid")
	assert.Contains(t, out, "testdata/broken.yml: connection c1 (dest-1.out -> osc-1.freq) cannot be made")
	assert.Contains(t, out, "testdata/unknown.json: ")
	assert.Contains(t, out, patchbay.ErrUnknownModuleType.Error())
	assert.Contains(t, out, "Tremolo: ok\n")
	assert.Contains(t, stderr, "skipping connection")
}

func TestDot(t *testing.T) {
	out, _, err := execute(t, "dot", "Vibrato Pad")
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "dot-vibrato-pad", []byte(out))

	file := filepath.Join(t.TempDir(), "patch.dot")
	_, _, err = execute(t, "dot", "Vibrato Pad", "-o", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestImpulse(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ir.wav")
	out, _, err := execute(t, "impulse", "-o", file, "--duration", "0.5", "--pcm16")
	require.NoError(t, err)
	assert.Contains(t, out, "2 ch, 0.50s")
	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	b, err := patchbay.ReadWav(f)
	require.NoError(t, err)
	assert.Equal(t, 2, b.NumChannels())
	assert.Equal(t, 22050, b.Length())
	assert.LessOrEqual(t, b.Peak(), float32(1))

	_, _, err = execute(t, "impulse", "-o", file, "--duration", "0")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/sequenced.yml", "--duration", "300ms")
	require.NoError(t, err)
	assert.Regexp(t, `^Sequenced: 4 modules, 3 connections, [1-9]\d* notes in 0\.\d\ds\n`, out)
	assert.Contains(t, out, "events, now")

	out, _, err = execute(t, "run", "Simple Bass", "--duration", "50ms", "--quiet")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, _, err = execute(t, "run", "No Such Preset", "--duration", "50ms")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("midiChannel: 99\n"), 0644))
	root := cmd.NewRootCommand()
	root.SetArgs([]string{"--config", path, "presets"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, root.Execute(), "midiChannel")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Regexp(t, `^patchbay \S+ `, out)
}
