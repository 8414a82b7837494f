package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint(t *testing.T) {
	raw := `
generator client {
  provider        = "prisma-client-js"
  previewFeatures = ["teleportation"]
}

model User {
  id  Int @id
  pet Pet
}
`
	var messages []LintMessage
	require.NoError(t, json.Unmarshal([]byte(Lint(raw)), &messages))
	require.Len(t, messages, 2)

	assert.False(t, messages[0].IsWarning)
	assert.Contains(t, messages[0].Text, `Type "Pet"`)
	assert.Equal(t, "Pet", raw[messages[0].Start:messages[0].End])

	assert.True(t, messages[1].IsWarning)
	assert.Equal(t, `Preview feature "teleportation" is not known.`, messages[1].Text)
}

func TestLint_ValidSchema(t *testing.T) {
	assert.Equal(t, "[]", Lint(sqliteSchema))
}

func TestGetConfig(t *testing.T) {
	raw := `
datasource db {
  provider = "postgresql"
  url      = env("QE_TEST_GET_CONFIG_URL")
}
`
	result, err := GetConfig(GetConfigParams{
		Datamodel: raw,
		Env:       map[string]string{"QE_TEST_GET_CONFIG_URL": "postgresql://localhost/app"},
	})
	require.NoError(t, err)
	require.Len(t, result.Datasources, 1)
	assert.Equal(t, "postgresql://localhost/app", result.Datasources[0].URL.Value)
	assert.Equal(t, "QE_TEST_GET_CONFIG_URL", result.Datasources[0].URL.FromEnvVar)
	assert.Empty(t, result.Generators)
	assert.Empty(t, result.Warnings)

	_, err = GetConfig(GetConfigParams{Datamodel: raw})
	assert.ErrorContains(t, err, "Environment variable not found: QE_TEST_GET_CONFIG_URL.")

	result, err = GetConfig(GetConfigParams{Datamodel: raw, IgnoreEnvVarErrors: true})
	require.NoError(t, err)
	assert.False(t, result.Datasources[0].URL.IsSet())
}

func TestGetConfig_InvalidConfiguration(t *testing.T) {
	_, err := GetConfig(GetConfigParams{Datamodel: "datasource db {\n  provider = \"oracle\"\n}\n"})
	assert.ErrorContains(t, err, `Datasource provider not known: "oracle".`)
}
