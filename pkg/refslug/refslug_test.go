package refslug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("", "Jane Doe Reviews")
	require.NoError(t, err)
	assert.Equal(t, "jane-doe-reviews", got)

	got, err = Normalize("  Spring Launch ", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "spring-launch", got)

	got, err = Normalize(strings.Repeat("ab ", 40), "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), MaxLength)

	_, err = Normalize("  ", "")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Normalize("!!!", "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "jane", Clean(" Jane "))
	assert.Equal(t, "", Clean(""))
}
