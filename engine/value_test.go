package engine

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueExpectAllowsUninitialised(t *testing.T) {
	v := NewValue(Uninitialised)
	got, err := v.Expect(Integer, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int())
}

func TestValueExpectRejectsMismatch(t *testing.T) {
	v := FromInt(5)
	_, err := v.Expect(Float, false)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrTypeError))
}

func TestValueABIRoundTrip(t *testing.T) {
	v := FromFloat(3.5)
	bits := v.ToABI()
	got := FromABI(bits, Float)
	assert.Equal(t, 3.5, got.Float())
}

func TestParseIntHex(t *testing.T) {
	v, err := ParseInt("0x2A")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
}

func TestParseFloatRejectsNaNAndInf(t *testing.T) {
	_, err := ParseFloat("nan")
	require.Error(t, err)

	_, err = ParseFloat("inf")
	require.Error(t, err)
}

func TestParseFloatRejectsSubnormal(t *testing.T) {
	tiny := math.Float64frombits(1) // smallest positive subnormal
	_, err := ParseFloat(strconv.FormatFloat(tiny, 'g', -1, 64))
	require.Error(t, err)
}

func TestParseFloatAcceptsZero(t *testing.T) {
	v, err := ParseFloat("0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Float())

	v, err = ParseFloat("-0.0")
	require.NoError(t, err)
	assert.Equal(t, true, math.Signbit(v.Float()))
}
