package kafka

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type req struct {
		Corpus string `json:"corpus"`
	}
	v, err := DecodeJSON[req]([]byte(`{"corpus":"libc"}`))
	require.NoError(t, err)
	assert.Equal(t, "libc", v.Corpus)

	_, err = DecodeJSON[req]([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrPoison))
}

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{{Key: "libc", Value: map[string]int{"n": 1}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "libc", string(msgs[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Value))

	_, err = encode([]Event{{Key: "bad", Value: math.Inf(1)}})
	assert.Error(t, err)
}
