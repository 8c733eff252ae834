package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
	"github.com/edumarques81/sambamount/internal/infra/registry"
	"github.com/edumarques81/sambamount/internal/version"
)

// testConfig writes a config that keeps the registry and base dir inside
// a temp dir and returns its path and the registry path.
func testConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.jsonl")
	body := fmt.Sprintf("registry:\n  path: %s\nmount:\n  base_dir: %s\nmetrics:\n  enabled: false\n",
		regPath, filepath.Join(dir, "mnt"))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, regPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Name, info.Name)
}

func TestListCommand_EmptyRegistry(t *testing.T) {
	cfgPath, _ := testConfig(t)

	out, err := execute(t, "list", "--json", "--config", cfgPath)
	require.NoError(t, err)

	var infos []mounts.MountInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Empty(t, infos)
	assert.NotNil(t, infos)
}

func TestListCommand_RegistryInUse(t *testing.T) {
	cfgPath, regPath := testConfig(t)

	held, err := registry.Open(regPath)
	require.NoError(t, err)
	defer held.Close()

	_, err = execute(t, "list", "--json", "--config", cfgPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrLocked)
	assert.Contains(t, err.Error(), "sambamount serve")
}

func TestUnmountCommand_NotMounted(t *testing.T) {
	cfgPath, regPath := testConfig(t)
	mp := filepath.Join(filepath.Dir(regPath), "mnt", "nothing")

	_, err := execute(t, "unmount", mp, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, mounts.KindNotMounted, mounts.KindOf(err))
}

func TestMountCommand_InvalidServer(t *testing.T) {
	cfgPath, _ := testConfig(t)

	_, err := execute(t, "mount", "--server", "//nas", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, mounts.KindInvalidRequest, mounts.KindOf(err))
}

func TestBadConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mount:\n  base_dir: relative\n"), 0o600))

	_, err := execute(t, "list", "--config", path)
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"secret\n", "secret"},
		{"secret", "secret"},
		{"s3cr3t\r\nignored\n", "s3cr3t"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := readPassword(strings.NewReader(tt.in), &bytes.Buffer{}, true)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestSetupLogging(t *testing.T) {
	level := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(level)

	var buf bytes.Buffer
	setupLogging(&buf, "warn", false)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogging(&buf, "warn", true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogging(&buf, "bogus", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
