package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRecord_Equal(t *testing.T) {
	a := StepRecord{"plugin": "get", "source": []string{"a", "b"}}
	b := StepRecord{"plugin": "get", "source": []any{"a", "b"}}
	c := StepRecord{"plugin": "get", "source": "a"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "get", c.Plugin())
	assert.Equal(t, "a", c.String("source"))
	assert.Equal(t, "", StepRecord{}.Plugin())
}

func TestStepRecord_CloneIsDeep(t *testing.T) {
	orig := StepRecord{
		"plugin":     PluginMigrationLookup,
		"migration":  []any{"a"},
		"source_ids": map[string]any{"a": []any{"col"}},
	}
	cp := orig.Clone()
	cp["migration"].([]any)[0] = "b"
	cp["source_ids"].(map[string]any)["z"] = "x"

	assert.Equal(t, "a", orig["migration"].([]any)[0])
	_, ok := orig["source_ids"].(map[string]any)["z"]
	assert.False(t, ok)
}

func TestCloneProcess(t *testing.T) {
	in := []FieldProcess{{Field: "title", Steps: []StepRecord{{"plugin": "get", "source": "Title"}}}}
	out := CloneProcess(in)
	out[0].Steps[0]["source"] = "Other"

	assert.Equal(t, "Title", in[0].Steps[0]["source"])
	assert.Nil(t, CloneProcess(nil))
}

func TestJobTemplate_Validate(t *testing.T) {
	valid := JobTemplate{
		ID:          "isi_file",
		Group:       "isi",
		Destination: map[string]any{"plugin": "entity:file"},
		Process:     []FieldProcess{{Field: "uri"}},
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "entity:file", valid.DestinationPlugin())

	dup := valid
	dup.Process = []FieldProcess{{Field: "uri"}, {Field: "uri"}}
	assert.Error(t, dup.Validate())

	noGroup := valid
	noGroup.Group = ""
	assert.Error(t, noGroup.Validate())

	noDest := valid
	noDest.Destination = nil
	assert.Error(t, noDest.Validate())
}

func TestDependencies_Clone(t *testing.T) {
	d := Dependencies{Enforced: map[string][]string{"module": {"isi"}}, Module: []string{"file"}}
	cp := d.Clone()
	cp.Enforced["module"][0] = "other"
	cp.Module[0] = "other"

	assert.Equal(t, "isi", d.Enforced["module"][0])
	assert.Equal(t, "file", d.Module[0])
}
