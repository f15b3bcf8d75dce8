package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razerkbd/internal/keyboard"
)

func TestExportImportProfile(t *testing.T) {
	src, _ := newTestManager(t, nil)
	require.NoError(t, src.AddMap(DefaultProfileName, "Gaming"))
	require.NoError(t, src.AddAction(DefaultProfileName, "Gaming", 2, KindKey, "3"))
	require.NoError(t, src.AddAction(DefaultProfileName, DefaultMapName, 2, KindMap, "Gaming"))

	data, err := src.Export(DefaultProfileName)
	require.NoError(t, err)

	dst, em := newTestManager(t, nil)
	name, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfileName, name)

	maps, err := dst.Maps(DefaultProfileName)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultMapName, "Gaming"}, maps)

	dst.KeyPress(2, keyboard.Press)
	dst.KeyPress(2, keyboard.Press)
	assert.Equal(t, []emitted{{3, 1}}, em.take())
}

func TestDecodeProfileRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing maps", `{"name":"A","default_map":"Default"}`},
		{"unknown action type", `{"name":"A","default_map":"D","maps":[{"name":"D","bindings":{"2":[{"type":"jump","value":"1"}]}}]}`},
		{"non numeric key", `{"name":"A","default_map":"D","maps":[{"name":"D","bindings":{"x":[]}}]}`},
		{"missing default map", `{"name":"A","default_map":"Other","maps":[{"name":"D","bindings":{}}]}`},
		{"bad key value", `{"name":"A","default_map":"D","maps":[{"name":"D","bindings":{"2":[{"type":"key","value":"abc"}]}}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeProfile([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeProfileNullBindings(t *testing.T) {
	p, err := DecodeProfile([]byte(`{"name":"A","default_map":"D","maps":[{"name":"D","bindings":null}]}`))
	require.NoError(t, err)
	require.Len(t, p.Maps, 1)
	assert.NotNil(t, p.Maps[0].Bindings)
}
