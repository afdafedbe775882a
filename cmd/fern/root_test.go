package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestIdentifyCommand(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RESOLVE_LOCK_MODE", "none")
	t.Setenv("LOG_LEVEL", "error")

	t.Run("prints the cluster", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"identify", "--env-file", "does-not-exist.env", "--email", "doc@brown.io", "--phone", "121"})

		require.NoError(t, cmd.Execute())

		var res models.IdentifyResponse
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		assert.Equal(t, int64(1), res.Contact.PrimaryContactID)
		assert.Equal(t, []string{"doc@brown.io"}, res.Contact.Emails)
		assert.Equal(t, []string{"121"}, res.Contact.PhoneNumbers)
		assert.Empty(t, res.Contact.SecondaryContactIDs)
	})

	t.Run("requires a value", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"identify"})

		assert.Error(t, cmd.Execute())
	})
}
