package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "analisimatematicai", NormalizeName(" Analisi  Matematica I\n"))
}

func TestMatchName(t *testing.T) {
	require.True(t, MatchName("Analisi Matematica I", []string{"analisi"}))
	require.True(t, MatchName("Analisi Matematica I", []string{"Matematica I"}))
	require.False(t, MatchName("Analisi Matematica I", []string{"fisica"}))
	require.False(t, MatchName("Analisi Matematica I", nil))
}
