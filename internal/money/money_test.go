package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2_NormalizesToTwoDecimalPlaces(t *testing.T) {
	assert.Equal(t, 1234.57, Round2(1234.56789))
	assert.Equal(t, -1234.57, Round2(-1234.56789))
	assert.Equal(t, 0.0, Round2(0))
}

func TestRound4_NormalizesToFourDecimalPlaces(t *testing.T) {
	assert.Equal(t, 0.5235, Round4(0.52346))
	assert.Equal(t, -0.1235, Round4(-0.12346))
}
