package scratch

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest_CombinedAndSplitKeys(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"targets":[
		{"isStage":true,"costumes":[{"md5ext":"aaa.svg"}],"sounds":[]},
		{"costumes":[{"assetId":"bbb","dataFormat":"png"}],"sounds":[{"md5ext":"ccc.wav"}]}
	]}`)

	m, err := ParseManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, m.Raw)
	assert.Equal(t, 2, m.TargetCount())
	assert.Equal(t, []AssetKey{"aaa.svg", "bbb.png", "ccc.wav"}, slices.Collect(m.AssetKeys()))
	assert.Equal(t, 3, m.AssetCount())
}

func TestParseManifest_CombinedFieldWins(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"targets":[{"costumes":[{"md5ext":"aaa.svg","assetId":"zzz","dataFormat":"png"}],"sounds":[]}]}`)

	m, err := ParseManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, []AssetKey{"aaa.svg"}, slices.Collect(m.AssetKeys()))
}

func TestManifestAssetKeys_Deduplicates(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"targets":[
		{"costumes":[{"md5ext":"shared.svg"},{"md5ext":"shared.svg"}],"sounds":[{"md5ext":"pop.wav"}]},
		{"costumes":[{"assetId":"shared","dataFormat":"svg"}],"sounds":[{"md5ext":"pop.wav"}]}
	]}`)

	m, err := ParseManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, []AssetKey{"shared.svg", "pop.wav"}, slices.Collect(m.AssetKeys()))
}

func TestManifestAssetKeys_StopsEarly(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"targets":[{"costumes":[{"md5ext":"a.svg"},{"md5ext":"b.svg"}],"sounds":[{"md5ext":"c.wav"}]}]}`)
	m, err := ParseManifest(raw)
	require.NoError(t, err)

	var got []AssetKey
	for key := range m.AssetKeys() {
		got = append(got, key)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []AssetKey{"a.svg", "b.svg"}, got)
}

func TestParseManifest_ZeroAssets(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`{"targets":[{"costumes":[],"sounds":[]}]}`))
	require.NoError(t, err)
	assert.Zero(t, m.AssetCount())
}

func TestParseManifest_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		kind Kind
	}{
		{name: "invalid json", raw: `{"targets":`, kind: KindManifestFetch},
		{name: "not an object", raw: `[1,2,3]`, kind: KindMalformedManifest},
		{name: "missing targets", raw: `{"meta":{}}`, kind: KindMalformedManifest},
		{name: "null targets", raw: `{"targets":null}`, kind: KindMalformedManifest},
		{name: "targets not array", raw: `{"targets":{}}`, kind: KindMalformedManifest},
		{name: "missing costumes", raw: `{"targets":[{"sounds":[]}]}`, kind: KindMalformedManifest},
		{name: "missing sounds", raw: `{"targets":[{"costumes":[]}]}`, kind: KindMalformedManifest},
		{name: "entry without key", raw: `{"targets":[{"costumes":[{"assetId":"abc"}],"sounds":[]}]}`, kind: KindMalformedManifest},
		{name: "traversal key", raw: `{"targets":[{"costumes":[{"md5ext":"../etc/passwd"}],"sounds":[]}]}`, kind: KindMalformedManifest},
		{name: "numeric key", raw: `{"targets":[{"costumes":[{"md5ext":42}],"sounds":[]}]}`, kind: KindMalformedManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseManifest([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}
