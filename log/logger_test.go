// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalHandler(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&out, LevelInfo, false))

	l.Debug("hidden")
	assert.Equal(t, 0, out.Len())

	l.Info("added rewards", "pool", "p1", "amount", big.NewInt(1000))
	line := out.String()
	assert.True(t, strings.HasPrefix(line, "[INFO]"), line)
	assert.Contains(t, line, "added rewards")
	assert.Contains(t, line, "pool=p1")
	assert.Contains(t, line, "amount=1000")
}

func TestWithContext(t *testing.T) {
	var out bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandler(&out, false)))
	defer SetDefault(NewLogger(DiscardHandler()))

	l := WithContext("pkg", "rewards")
	l.Warn("claims disabled")
	assert.Contains(t, out.String(), "pkg=rewards")
	assert.Contains(t, out.String(), "claims disabled")
}
