package spot

import (
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"

	"gridwarden/pkg/apperrors"
)

func TestMapErrTranslatesKnownCodes(t *testing.T) {
	cases := []struct {
		code int64
		want error
	}{
		{-2010, apperrors.ErrInsufficientFunds},
		{-2012, apperrors.ErrDuplicateOrder},
		{-2015, apperrors.ErrAuthenticationFailed},
		{-1003, apperrors.ErrRateLimitExceeded},
		{-1121, apperrors.ErrInvalidSymbol},
		{-1021, apperrors.ErrTimestampOutOfBounds},
	}
	for _, tc := range cases {
		got := mapErr(&binance.APIError{Code: tc.code, Message: "x"})
		assert.ErrorIs(t, got, tc.want)
	}
}

func TestMapErrNilIsNil(t *testing.T) {
	assert.NoError(t, mapErr(nil))
}

func TestMapErrUnknownFallsBackToNetwork(t *testing.T) {
	got := mapErr(errors.New("boom"))
	assert.ErrorIs(t, got, apperrors.ErrNetwork)
}
