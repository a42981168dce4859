package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHosts(t *testing.T, lines string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.conf")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestLoadHostsParsesLines(t *testing.T) {
	path := writeHosts(t, "10.0.0.1\n10.0.0.2\n\n10.0.0.3\n")
	hosts, err := LoadHosts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, hosts)
}

func TestLoadHostsMissingFile(t *testing.T) {
	_, err := LoadHosts(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestLoadHostsEmptyFile(t *testing.T) {
	path := writeHosts(t, "\n\n")
	_, err := LoadHosts(path)
	assert.Error(t, err)
}

func TestLoadHostsCapsAtMaxNodes(t *testing.T) {
	var lines string
	for i := 0; i < MaxNodes+5; i++ {
		lines += "10.0.0.1\n"
	}
	path := writeHosts(t, lines)
	hosts, err := LoadHosts(path)
	require.NoError(t, err)
	assert.Len(t, hosts, MaxNodes)
}

func TestParseSelfID(t *testing.T) {
	id, err := ParseSelfID([]string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestParseSelfIDWrongArgCount(t *testing.T) {
	_, err := ParseSelfID(nil)
	assert.Error(t, err)
	_, err = ParseSelfID([]string{"1", "2"})
	assert.Error(t, err)
}

func TestParseSelfIDNotAnInteger(t *testing.T) {
	_, err := ParseSelfID([]string{"nope"})
	assert.Error(t, err)
}

func TestParseSelfIDNegative(t *testing.T) {
	_, err := ParseSelfID([]string{"-1"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	hosts := []string{"a", "b", "c"}
	assert.NoError(t, Validate(0, hosts))
	assert.NoError(t, Validate(2, hosts))
	assert.Error(t, Validate(3, hosts))
}

func TestHostsPathEnvOverride(t *testing.T) {
	t.Setenv("PBSM_HOSTS_FILE", "/tmp/custom-hosts.conf")
	assert.Equal(t, "/tmp/custom-hosts.conf", HostsPath())
}

func TestHostsPathDefault(t *testing.T) {
	t.Setenv("PBSM_HOSTS_FILE", "")
	assert.Equal(t, DefaultHostsPath, HostsPath())
}
