package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.21.0", want: "1.21.0"},
		{in: "v1.20.10", want: "1.20.10"},
		{in: "1.19", want: "1.19.0"},
		{in: " 1.21.0-beta.1 ", want: "1.21.0-beta.1"},
		{in: "", wantErr: true},
		{in: "latest", wantErr: true},
		{in: "1.21.0+abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestCompare(t *testing.T) {
	assert.True(t, MustParse("1.20.0").Less(MustParse("1.21.0")))
	assert.True(t, MustParse("1.9.0").Less(MustParse("1.10.0")))
	assert.True(t, MustParse("1.21.0-beta.1").Less(MustParse("1.21.0")))
	assert.Equal(t, 0, MustParse("1.21").Compare(MustParse("v1.21.0")))
	assert.True(t, MustParse("1.21.0-beta.1").IsPrerelease())
}

func TestVersionAsMapKey(t *testing.T) {
	m := map[Version]int{MustParse("1.21"): 1}
	_, ok := m[MustParse("1.21.0")]
	assert.True(t, ok)
}

func TestDescriptorJSON(t *testing.T) {
	raw := `{"version":"1.21.0","version_code":"972102101","version_name":"1.21.0","beta":false,"size":524288000}`

	var d Descriptor
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, MustParse("1.21.0"), d.Version)
	assert.Equal(t, "972102101", d.Code)
	assert.Equal(t, int64(1048576000), d.RequiredSpace())

	var missing Descriptor
	assert.Error(t, json.Unmarshal([]byte(`{"size":1}`), &missing))
}

func TestDescriptorValidate(t *testing.T) {
	assert.NoError(t, Descriptor{Version: MustParse("1.21.0"), Size: 1}.Validate())
	assert.Error(t, Descriptor{Size: 1}.Validate())
	assert.Error(t, Descriptor{Version: MustParse("1.21.0")}.Validate())
}
