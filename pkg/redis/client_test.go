package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPrefixEscapesGlobs(t *testing.T) {
	assert.Equal(t, "blocksearch:4:libc:*", matchPrefix("blocksearch:4:libc:"))
	assert.Equal(t, `blocksearch:2:a\*:*`, matchPrefix("blocksearch:2:a*:"))
	assert.Equal(t, `x\?\[y\]\\*`, matchPrefix(`x?[y]\`))
}
