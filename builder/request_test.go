package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Slug: "foo", Versions: []string{"trunk", "1.0"}}, false},
		{"dashed slug", Request{Slug: "my-plugin", Versions: []string{"2.0-beta1"}}, false},
		{"no slug", Request{Versions: []string{"trunk"}}, true},
		{"no versions", Request{Slug: "foo"}, true},
		{"dot slug", Request{Slug: "..", Versions: []string{"trunk"}}, true},
		{"slash in slug", Request{Slug: "foo/bar", Versions: []string{"trunk"}}, true},
		{"backslash in version", Request{Slug: "foo", Versions: []string{`1\0`}}, true},
		{"empty version", Request{Slug: "foo", Versions: []string{"trunk", ""}}, true},
		{"nul in version", Request{Slug: "foo", Versions: []string{"1.0\x00"}}, true},
		{"padded slug", Request{Slug: " foo", Versions: []string{"trunk"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, zberrors.CodeInvalidInput, zberrors.GetCode(err))
		})
	}
}

func TestRequestVersionsDeduplicated(t *testing.T) {
	req := Request{Slug: "foo", Versions: []string{"1.0", "trunk", "1.0", "2.0", "trunk"}}
	assert.Equal(t, []string{"1.0", "trunk", "2.0"}, req.versions())
}

func TestRequestCommitMessage(t *testing.T) {
	assert.Equal(t, "Updated ZIPs for foo.", Request{Slug: "foo"}.CommitMessage())
	assert.Equal(t, "foo: r1234", Request{Slug: "foo", Context: "foo: r1234"}.CommitMessage())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTrunk, KindOf("trunk"))
	assert.Equal(t, KindSemver, KindOf("1.0"))
	assert.Equal(t, KindSemver, KindOf("2.3.4-rc1"))
	assert.Equal(t, KindTag, KindOf("bad-version"))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "foo.zip", ArchiveName("foo", "trunk"))
	assert.Equal(t, "foo.2.1.zip", ArchiveName("foo", "2.1"))
	assert.Equal(t, "foo.0.9.zip", ArchiveName("foo", "0.9"))
}

func TestBatchResult(t *testing.T) {
	res := &BatchResult{Versions: []VersionResult{
		{Version: "trunk", Status: StatusBuilt},
		{Version: "1.0", Status: StatusSkipped},
		{Version: "2.0", Status: StatusBuilt},
	}}
	assert.Equal(t, []string{"trunk", "2.0"}, res.Built())
	assert.Equal(t, []string{"1.0"}, res.Skipped())
	assert.False(t, res.OK())

	res.Commit = vcs.OK()
	assert.True(t, res.OK())

	disabled := &BatchResult{Disabled: true, NoopCommit: true}
	assert.False(t, disabled.OK())
}
