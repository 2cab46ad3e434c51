package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIsValid(t *testing.T) {
	a, b := Generate(), Generate()
	assert.True(t, Valid(a))
	assert.NotEqual(t, a, b)
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-an-id"))
}
