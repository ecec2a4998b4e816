package fleet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArtifact_Validate(t *testing.T) {
	t.Parallel()

	good := Artifact{
		Version:   "v2026.08.23.01",
		ObjectKey: "releases/v2026.08.23.01/drydock-v2026.08.23.01.tar.gz",
		SHA256:    strings.Repeat("ab", 32),
		Size:      1024,
	}
	require.NoError(t, good.Validate())

	cases := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"empty version", func(a *Artifact) { a.Version = "" }},
		{"version with slash", func(a *Artifact) { a.Version = "v1/evil" }},
		{"version with leading dot", func(a *Artifact) { a.Version = ".hidden" }},
		{"empty object key", func(a *Artifact) { a.ObjectKey = "" }},
		{"short digest", func(a *Artifact) { a.SHA256 = "abcd" }},
		{"uppercase digest", func(a *Artifact) { a.SHA256 = strings.Repeat("AB", 32) }},
		{"non-hex digest", func(a *Artifact) { a.SHA256 = strings.Repeat("zz", 32) }},
		{"zero size", func(a *Artifact) { a.Size = 0 }},
		{"negative size", func(a *Artifact) { a.Size = -5 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := good
			tc.mutate(&a)
			require.ErrorIs(t, a.Validate(), ErrBadRequest)
		})
	}
}

// TestArtifact_NormalizeLowersDigest checks uploads with mixed-case digests
// still compare equal after normalization.
func TestArtifact_NormalizeLowersDigest(t *testing.T) {
	t.Parallel()

	a := Artifact{
		Version:   "  v1.2.3  ",
		ObjectKey: " releases/v1.2.3/app.tar.gz ",
		SHA256:    strings.Repeat("AB", 32),
		Size:      10,
	}
	a.Normalize()

	require.Equal(t, "v1.2.3", a.Version)
	require.Equal(t, "releases/v1.2.3/app.tar.gz", a.ObjectKey)
	require.Equal(t, strings.Repeat("ab", 32), a.SHA256)
	require.NoError(t, a.Validate())
}

func TestArtifact_SameContent(t *testing.T) {
	t.Parallel()

	a := Artifact{Version: "v1", SHA256: strings.Repeat("aa", 32), Size: 100}
	b := Artifact{Version: "v1", SHA256: strings.Repeat("aa", 32), Size: 100}
	require.True(t, a.SameContent(&b))

	b.Size = 101
	require.False(t, a.SameContent(&b))

	b.Size = 100
	b.SHA256 = strings.Repeat("bb", 32)
	require.False(t, a.SameContent(&b))
}
