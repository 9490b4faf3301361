package costing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectSize(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"Pizza Grande Calabresa", SizeLarge, true},
		{"Pizza GRANDE", SizeLarge, true},
		{"Pizza Média Portuguesa", SizeMedium, true},
		{"pizza media quatro queijos", SizeMedium, true},
		{"Pizza Família", SizeFamily, true},
		{"Pizza Broto Mussarela", SizeCompact, true},
		{"Pizza Mediana", "", false},
		{"Refrigerante 2L", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectSize(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

func TestDetectSizePrecedence(t *testing.T) {
	// Two size words in one name: the precedence order decides.
	got, ok := DetectSize("Meia Broto Meia Grande")
	require.True(t, ok)
	require.Equal(t, SizeCompact, got)

	got, ok = DetectSize("Combo Grande + Família")
	require.True(t, ok)
	require.Equal(t, SizeLarge, got)
}
