package errors

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	err := BadRequest("invalid image", io.ErrUnexpectedEOF)
	require.Equal(t, http.StatusBadRequest, err.Code)
	require.Equal(t, "invalid image: unexpected EOF", err.Error())
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	require.Equal(t, http.StatusNotFound, NotFound("job not found", nil).Code)
	require.Equal(t, "job not found", NotFound("job not found", nil).Error())
	require.Equal(t, http.StatusRequestEntityTooLarge, TooLarge("too big", nil).Code)
	require.Equal(t, http.StatusInternalServerError, Internal("boom", nil).Code)
}
