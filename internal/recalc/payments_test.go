package recalc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawReferencesMethod(t *testing.T) {
	flat := []byte(`{"payments":[{"methodId":"CREDIT"},{"methodId":"MEAL_VOUCHER"}]}`)
	nested := []byte(`{"payments":[{"method":{"id":"CREDIT","name":"Credit card"}}]}`)

	require.True(t, rawReferencesMethod(flat, "CREDIT"))
	require.True(t, rawReferencesMethod(flat, "MEAL_VOUCHER"))
	require.True(t, rawReferencesMethod(nested, "CREDIT"))

	require.False(t, rawReferencesMethod(flat, "DEBIT"))
	require.False(t, rawReferencesMethod(nil, "CREDIT"))
	require.False(t, rawReferencesMethod([]byte(`{}`), "CREDIT"))
	require.False(t, rawReferencesMethod([]byte(`not json`), "CREDIT"))
	require.False(t, rawReferencesMethod(flat, ""))
}
