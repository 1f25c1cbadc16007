package satelit

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Source
		wantErr bool
	}{
		{
			name: "string tag",
			raw:  `"anidb"`,
			want: SourceAnidb,
		},
		{
			name:    "string tag must match exactly",
			raw:     `"AniDB"`,
			wantErr: true,
		},
		{
			name:    "string tag with spaces",
			raw:     `" anidb "`,
			wantErr: true,
		},
		{
			name: "legacy numeric tag",
			raw:  `1`,
			want: SourceAnidb,
		},
		{
			name:    "unknown string tag",
			raw:     `"mal"`,
			wantErr: true,
		},
		{
			name:    "unknown numeric tag",
			raw:     `0`,
			wantErr: true,
		},
		{
			name:    "not a tag at all",
			raw:     `{"source":"anidb"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceFromJSON(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownSource)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSourceRoundTrip(t *testing.T) {
	for _, src := range Sources {
		got, err := ParseSource(src.String())
		require.NoError(t, err)
		assert.Equal(t, src, got)
	}

	got, err := ParseSource(" AniDB ")
	require.NoError(t, err)
	assert.Equal(t, SourceAnidb, got)

	_, err = ParseSource("source(7)")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestTitleIDsKeepOrder(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stored title ids scan back in the same order", prop.ForAll(
		func(ids []int32) bool {
			v, err := TitleIDs(ids).Value()
			if err != nil {
				return false
			}

			var got TitleIDs
			if err := got.Scan(v); err != nil {
				return false
			}
			if len(got) != len(ids) {
				return false
			}
			for i := range ids {
				if got[i] != ids[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int32()),
	))

	properties.TestingRun(t)
}

func TestTitleIDsScan(t *testing.T) {
	var ids TitleIDs

	require.NoError(t, ids.Scan([]byte(`[10,20]`)))
	assert.Equal(t, TitleIDs{10, 20}, ids)

	require.NoError(t, ids.Scan(nil))
	assert.Equal(t, TitleIDs{}, ids)

	require.NoError(t, ids.Scan("null"))
	assert.Equal(t, TitleIDs{}, ids)

	assert.Error(t, ids.Scan(42))
	assert.Error(t, ids.Scan("not json"))
}
