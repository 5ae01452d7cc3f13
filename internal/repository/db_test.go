package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUUIDsOnly(t *testing.T) {
	id := uuid.NewString()
	got := uuidsOnly([]string{id, "not-a-uuid", "", "{" + id + "}", "urn:uuid:" + id})
	assert.Equal(t, []string{id}, got)
	assert.Empty(t, uuidsOnly(nil))
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", *nullableString("x"))
}
