package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpandPaths_SingleFile(t *testing.T) {
	dir := t.TempDir()
	f := writeTempFile(t, dir, "a.yaml", "id: a\n")

	got, err := expandPaths([]string{f})
	require.NoError(t, err)
	assert.Equal(t, []string{f}, got)
}

func TestExpandPaths_DirectoryFiltersToYAML(t *testing.T) {
	dir := t.TempDir()
	yamlFile := writeTempFile(t, dir, "a.yaml", "id: a\n")
	ymlFile := writeTempFile(t, dir, "b.yml", "id: b\n")
	writeTempFile(t, dir, "readme.txt", "not a tenant file")

	got, err := expandPaths([]string{dir})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{yamlFile, ymlFile}, got)
}

func TestExpandPaths_DeduplicatesAndSorts(t *testing.T) {
	dir := t.TempDir()
	b := writeTempFile(t, dir, "b.yaml", "id: b\n")
	a := writeTempFile(t, dir, "a.yaml", "id: a\n")

	got, err := expandPaths([]string{dir, a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestExpandPaths_MissingPathIsError(t *testing.T) {
	_, err := expandPaths([]string{"/no/such/path.yaml"})
	assert.Error(t, err)
}

func TestValidateCmd_Run_AllValidReturnsNoError(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "good.yaml", validTenantDocYAML("good"))

	cmd := &ValidateCmd{Paths: []string{dir}}
	err := cmd.Run(&CLI{})
	assert.NoError(t, err)
}

func TestValidateCmd_Run_InvalidFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "bad.yaml", "not: [valid yaml for a tenant doc")

	cmd := &ValidateCmd{Paths: []string{dir}}
	err := cmd.Run(&CLI{})
	assert.Error(t, err)
}

func TestValidateCmd_Run_NoFilesFoundIsError(t *testing.T) {
	dir := t.TempDir()
	cmd := &ValidateCmd{Paths: []string{dir}}
	err := cmd.Run(&CLI{})
	assert.Error(t, err)
}

func validTenantDocYAML(id string) string {
	return "id: " + id + "\ntrade: hvac\n"
}

func TestValidateCmd_Run_ExplainWithNoAdminModelStillReportsInvalid(t *testing.T) {
	t.Setenv("ADMIN_LLM_MODEL", "")
	dir := t.TempDir()
	writeTempFile(t, dir, "bad.yaml", "not: [valid yaml for a tenant doc")

	cmd := &ValidateCmd{Paths: []string{dir}, Explain: true}
	err := cmd.Run(&CLI{})
	assert.Error(t, err)
}

func TestBuildAdminGateway_NoModelConfiguredIsError(t *testing.T) {
	t.Setenv("ADMIN_LLM_MODEL", "")
	_, err := buildAdminGateway()
	assert.Error(t, err)
}
