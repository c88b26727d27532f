package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOmitsEmptyFields(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(Format(Fields{Service: "api", OrderID: 7})), &m))

	assert.Equal(t, "api", m["service"])
	assert.EqualValues(t, 7, m["order_id"])
	assert.NotContains(t, m, "seller_id")
	assert.NotContains(t, m, "error")
	assert.NotEmpty(t, m["timestamp"])
}

func TestErrWritesErrorText(t *testing.T) {
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	})

	Err(Fields{Service: "api", Event: "publish"}, errors.New("boom"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, "publish", m["event"])
}
