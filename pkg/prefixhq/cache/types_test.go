package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeParseKey(t *testing.T) {
	key := MakeKey("/mnt/games", "appmanifest_440.acf")
	lib, name := ParseKey(key)
	assert.Equal(t, "/mnt/games", lib)
	assert.Equal(t, "appmanifest_440.acf", name)

	lib, name = ParseKey([]byte("nokey"))
	assert.Equal(t, "nokey", lib)
	assert.Equal(t, "", name)
}

func TestMakeKeyPrefixIsolatesLibraries(t *testing.T) {
	// "/steam" must not match keys of "/steam2".
	prefix := MakeKeyPrefix("/steam")
	other := MakeKey("/steam2", "appmanifest_1.acf")
	assert.NotEqual(t, string(prefix), string(other[:len(prefix)]))
	assert.Nil(t, MakeKeyPrefix(""))
}

func TestManifestEncodeDecode(t *testing.T) {
	in := Manifest{Version: Version, Mtime: 42, Size: 7, AppID: 440, Name: "TF2", StateFlags: 6, HasFlags: true}
	data, err := in.Encode()
	require.NoError(t, err)

	var out Manifest
	require.NoError(t, out.Decode(data))
	assert.Equal(t, in, out)
}
