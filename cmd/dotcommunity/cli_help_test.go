package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want []string
	}{
		{"root", []string{"--help"}, []string{"run", "status", "check-config", "version", "--config", "--env-file"}},
		{"run", []string{"run", "--help"}, []string{"dotcommunity run --debug", "--debug"}},
		{"check-config", []string{"check-config", "--help"}, []string{"Validate the configuration"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := runRootCommandForTest(tc.args...)
			require.NoError(t, err, output)
			for _, w := range tc.want {
				assert.Contains(t, output, w)
			}
		})
	}
}

func TestCLI_NoSubcommand(t *testing.T) {
	_, err := runRootCommandForTest()
	assert.ErrorContains(t, err, "subcommand is required")
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "missing.env")

	t.Setenv("DISCORD_TOKEN", "")
	_, err := runRootCommandForTest("check-config", "--env-file", envFile)
	assert.ErrorContains(t, err, "DISCORD_TOKEN")

	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("TOPIC_CHANNEL_IDS", "111,222")
	output, err := runRootCommandForTest("check-config", "--env-file", envFile)
	require.NoError(t, err, output)
	assert.Contains(t, output, "Configuration OK")
	assert.Contains(t, output, "Topic channels: 111, 222")
}

func TestCheckConfig_DotenvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BOT_TIMEZONE=Not/AZone\n"), 0o644))
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("BOT_TIMEZONE", "")
	os.Unsetenv("BOT_TIMEZONE")

	_, err := runRootCommandForTest("check-config", "--env-file", envFile)
	assert.ErrorContains(t, err, "BOT_TIMEZONE")
}

func TestConfigReference(t *testing.T) {
	ref, err := buildConfigReferenceMarkdown()
	require.NoError(t, err)
	assert.Contains(t, ref, "`discord.token` | `string` | `DISCORD_TOKEN`")
	assert.Contains(t, ref, "`GEMINI_API_KEY`")
	assert.Contains(t, ref, "`topics.weekdays` | `weekday list` | `TOPIC_WEEKDAYS`")
	assert.Contains(t, ref, "`bot.timezone` | `string` | `BOT_TIMEZONE` | `\"Asia/Tokyo\"`")
	assert.False(t, strings.Contains(ref, "check_start_hour.Set"))
}

func TestProvidersReference(t *testing.T) {
	ref := buildProvidersReferenceMarkdown()
	assert.Contains(t, ref, "| `gemini` | `GEMINI_API_KEY` | primary |")
	assert.Contains(t, ref, "| `anthropic` | `ANTHROPIC_API_KEY` | secondary |")
}
