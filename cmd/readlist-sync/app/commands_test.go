package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readlist/readlist-sync/internal/versions"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t,
		[]string{"serve", "run", "enable", "disable", "status", "migrate", "version"},
		names)
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		verify func(t *testing.T, out string)
	}{
		{
			name: "text",
			args: []string{"version"},
			verify: func(t *testing.T, out string) {
				t.Helper()
				assert.True(t, strings.HasPrefix(out, "readlist-sync "))
			},
		},
		{
			name: "json",
			args: []string{"version", "--format", "json"},
			verify: func(t *testing.T, out string) {
				t.Helper()
				var info versions.VersionInfo
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.NotEmpty(t, info.GoVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := NewRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs(tt.args)
			require.NoError(t, root.Execute())
			tt.verify(t, out.String())
		})
	}
}

func TestReadAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"Y\n", true},
		{"  yes  \n", true},
		{"no\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, readAnswer(strings.NewReader(tt.input)))
		})
	}
}

func TestParseUserID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, err := parseUserID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseUserID("alice")
	assert.ErrorContains(t, err, "must be a UUID")
}

func TestEnableCmd_RequiresUserID(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"enable"})
	assert.Error(t, root.Execute())
}

func TestReadToken_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  secret-token\n"), 0o600))

	cmd := newEnableCmd()
	require.NoError(t, cmd.Flags().Set("token-file", path))

	token, err := readToken(cmd)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)
}

func TestReadToken_FromEnv(t *testing.T) {
	t.Setenv(tokenEnvVar, "env-token")

	token, err := readToken(newEnableCmd())
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestReadToken_Missing(t *testing.T) {
	t.Setenv(tokenEnvVar, "")

	_, err := readToken(newEnableCmd())
	assert.ErrorContains(t, err, tokenEnvVar)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("READLIST_SYNC_CONFIG", "from-env.yaml")

	cmd := NewRootCmd()
	assert.Equal(t, "from-env.yaml", configPath(cmd))

	require.NoError(t, cmd.PersistentFlags().Set("config", "from-flag.yaml"))
	assert.Equal(t, "from-flag.yaml", configPath(cmd))
}
