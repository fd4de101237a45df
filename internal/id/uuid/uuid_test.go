package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewJobID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewJobID()
	require.NoError(t, err)
	second, err := gen.NewJobID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, goUUID.Version(7), first.Version())
}

func TestParse(t *testing.T) {
	t.Parallel()

	id, err := Parse("0190f0e6-5c3c-7d4e-8a5b-0123456789ab")
	require.NoError(t, err)
	require.Equal(t, "0190f0e6-5c3c-7d4e-8a5b-0123456789ab", id.String())

	_, err = Parse("not-a-uuid")
	require.ErrorContains(t, err, "parse job id")
}
