package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

const welcomeYAML = `id: welcome-sequence
name: Welcome Sequence
steps:
  - id: start
    type: trigger
    config:
      event: signup
  - id: greet
    type: action
    config:
      service: email
      action: send
      params:
        to: "{{trigger_data.email}}"
        subject: Welcome!
`

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeTemplate(t, t.TempDir(), "welcome.yaml", welcomeYAML)

	tpl, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "welcome-sequence", tpl.ID)
	assert.Equal(t, "Welcome Sequence", tpl.Name)
	require.Len(t, tpl.Steps, 2)
	assert.Equal(t, schema.StepTypeTrigger, tpl.Steps[0].Type)
	assert.Equal(t, schema.StepTypeAction, tpl.Steps[1].Type)

	params, ok := tpl.Steps[1].Config["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "{{trigger_data.email}}", params["to"])
}

func TestLoadFileIDFallsBackToFilename(t *testing.T) {
	path := writeTemplate(t, t.TempDir(), "order-followup.yml", `
name: Order Followup
steps:
  - id: start
    type: trigger
`)

	tpl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "order-followup", tpl.ID)
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := writeTemplate(t, t.TempDir(), "broken.yaml", "steps: [unclosed")

	_, err := LoadFile(path)
	var swErr *schema.StepwiseError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
	assert.Contains(t, swErr.Message, "broken.yaml")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "b-second.yaml", "name: Second\nsteps: [{id: s, type: trigger}]\n")
	writeTemplate(t, dir, "a-first.yml", "name: First\nsteps: [{id: s, type: trigger}]\n")
	writeTemplate(t, dir, "notes.txt", "not a template")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeTemplate(t, filepath.Join(dir, "nested"), "c-hidden.yaml", "name: Hidden\n")

	tpls, err := LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, tpls, 2)
	assert.Equal(t, "a-first", tpls[0].ID)
	assert.Equal(t, "b-second", tpls[1].ID)
}

func TestLoadDirEmpty(t *testing.T) {
	tpls, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, tpls)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestLoadDirStopsOnBadFile(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "bad.yaml", "steps: [oops")

	_, err := LoadDir(dir)
	require.Error(t, err)
}
