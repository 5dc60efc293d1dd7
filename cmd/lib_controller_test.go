package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/cncstream/controller"
)

func TestResetCommandFlag(t *testing.T) {
	for _, cmd := range []string{"stream", "monitor", "script"} {
		t.Run(cmd, func(t *testing.T) {
			c, _, err := RootCmd.Find([]string{cmd})
			require.NoError(t, err)
			flag := c.PersistentFlags().Lookup("reset-command")
			require.NotNil(t, flag)
			require.Equal(t, controller.CommandResetSettings, flag.DefValue)
			require.Contains(t, flag.Usage, "restores ALL Grbl settings")
			require.Contains(t, flag.Usage, "factory defaults")
		})
	}
}
