package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, ComparePassword(hash, "s3cret"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestPasswordCostFallback(t *testing.T) {
	hash, err := HashPassword("s3cret", -1)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret"))
}
