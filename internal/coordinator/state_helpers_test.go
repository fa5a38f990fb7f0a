package coordinator

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnixOrZeroParsesValidTimestamp(t *testing.T) {
	now := time.Now().Unix()
	got := unixOrZero(strconv.FormatInt(now, 10))
	assert.Equal(t, now, got.Unix())
}

func TestUnixOrZeroFallsBackOnGarbage(t *testing.T) {
	assert.True(t, unixOrZero("not-a-number").IsZero())
}

func TestIntOrZeroFallsBackOnGarbage(t *testing.T) {
	assert.Equal(t, 0, intOrZero("nope"))
	assert.Equal(t, 42, intOrZero("42"))
}

func TestDecimalOrZeroFallsBackOnGarbage(t *testing.T) {
	assert.True(t, decimalOrZero("garbage").IsZero())
	assert.Equal(t, "1.5", decimalOrZero("1.5").String())
}
