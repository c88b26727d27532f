package orders

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomIDsReceiptCode(t *testing.T) {
	g := RandomIDs{}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := g.ReceiptCode()
		require.NoError(t, err)
		assert.True(t, ValidReceiptCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190, "codes drawn from 36^7 should practically never repeat")
}

func TestRandomIDsOrderNumber(t *testing.T) {
	g := RandomIDs{}
	a, err := g.OrderNumber()
	require.NoError(t, err)
	b, err := g.OrderNumber()
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, uuid.Version(4), a.Version())
}

func TestRandomIDsReaderError(t *testing.T) {
	g := RandomIDs{Rand: bytes.NewReader(nil)}

	_, err := g.ReceiptCode()
	assert.Error(t, err)
	_, err = g.OrderNumber()
	assert.Error(t, err)
}

func TestValidReceiptCode(t *testing.T) {
	assert.True(t, ValidReceiptCode("AB12CD9"))
	assert.False(t, ValidReceiptCode("ab12cd9"))
	assert.False(t, ValidReceiptCode("AB12CD"))
	assert.False(t, ValidReceiptCode("AB12CD9X"))
	assert.False(t, ValidReceiptCode("AB-2CD9"))
}
