package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePublicID(t *testing.T) {
	id, err := GeneratePublicID("Corner Cafe & Bakery")
	require.NoError(t, err)

	// slug expands "&" to "and"
	assert.True(t, strings.HasPrefix(id, "corner-cafe-and-bakery-"), id)
	// 4 random bytes hex encoded
	assert.Len(t, id, len("corner-cafe-and-bakery-")+8)

	other, err := GeneratePublicID("Corner Cafe & Bakery")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestGeneratePublicIDEmptyName(t *testing.T) {
	id, err := GeneratePublicID("!!!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "program-"), id)
}
