package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("lookup: %w", ErrBlockNotFound), http.StatusNotFound},
		{ErrCorpusNotFound, http.StatusNotFound},
		{fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrIndexNotReady, http.StatusServiceUnavailable},
		{New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad radius"), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrBlockNotFound, http.StatusNotFound, "block %d", 7)
	assert.True(t, Is(err, ErrBlockNotFound))
	assert.Equal(t, "block not found: block 7", err.Error())
}
