package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAppendKeepsOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry("a.js")
	reg.Append("b.js")
	reg.Append("a.js")

	assert.Equal(t, []string{"a.js", "b.js", "a.js"}, reg.List())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryListIsCopy(t *testing.T) {
	seed := []string{"x.js"}
	reg := NewRegistry(seed...)
	seed[0] = "mutated"

	list := reg.List()
	list[0] = "changed"

	assert.Equal(t, []string{"x.js"}, reg.List())
}
