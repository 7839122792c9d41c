package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalInt(t *testing.T) {
	n, err := optionalInt([]string{"up"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = optionalInt([]string{"down", "2"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = optionalInt([]string{"down", "-1"}, 0)
	assert.Error(t, err)
	_, err = optionalInt([]string{"up", "all"}, 0)
	assert.Error(t, err)
}

func TestRequiredInt(t *testing.T) {
	_, err := requiredInt([]string{"force"}, "force")
	assert.EqualError(t, err, "force requires a version argument")

	v, err := requiredInt([]string{"goto", "3"}, "goto")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
