package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripComment(t *testing.T) {
	for _, tc := range []struct {
		line     string
		expected string
	}{
		{line: "G0 X1", expected: "G0 X1"},
		{line: "  G0 X1  ", expected: "G0 X1"},
		{line: "; only comment", expected: ""},
		{line: "G1 X2 ; feed move", expected: "G1 X2"},
		{line: "(header)", expected: ""},
		{line: "G1 (inline) X3", expected: "G1  X3"},
		{line: "G1 (a (nested) b) X4", expected: "G1  X4"},
		{line: "(paren ; inside) G0 Z1", expected: "G0 Z1"},
		{line: "", expected: ""},
	} {
		t.Run(tc.line, func(t *testing.T) {
			require.Equal(t, tc.expected, stripComment(tc.line))
		})
	}
}
