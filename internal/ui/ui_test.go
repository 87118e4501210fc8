package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAddr(t *testing.T) {
	assert.Equal(t, "0xf39F…2266", TruncateAddr("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	assert.Equal(t, "0x1234", TruncateAddr("0x1234"))
}

func TestTxLink(t *testing.T) {
	assert.Equal(t, "https://bscscan.com/tx/0xabc", TxLink("https://bscscan.com/", "0xabc"))
	assert.Equal(t, "https://bscscan.com/tx/0xabc", TxLink("https://bscscan.com", "0xabc"))
	assert.Equal(t, "0xabc", TxLink("", "0xabc"))
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", 4))
	assert.Equal(t, "abcd", pad("abcdef", 4))
	assert.Equal(t, "…x ", pad("…x", 3))
}

func TestTableRender(t *testing.T) {
	tbl := NewTable([]Column{{Title: "NAME", Width: 8}, {Title: "ADDRESS", Width: 12}})
	tbl.AddRow(Row{"trader", "0xf39F…2266"})
	tbl.AddRow(Row{"watcher"})
	tbl.Mark = 0

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "--------")
	assert.Contains(t, lines[2], "trader")
	assert.Contains(t, lines[3], "watcher")
}

func TestKeyValueBlock(t *testing.T) {
	out := KeyValueBlock("Session", [][2]string{{"Account", "0xabc"}, {"Chain", "bsc"}})
	assert.Contains(t, out, "Session")
	assert.Contains(t, out, "Account:")
	assert.Contains(t, out, "bsc")
}

func TestPrompterConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		" yes \n": true,
		"n\n":     false,
		"\n":      false,
		"":        false,
	}
	for in, want := range cases {
		var out bytes.Buffer
		got := NewPrompter(strings.NewReader(in), &out).Confirm("Expose account?")
		assert.Equal(t, want, got, "input %q", in)
		assert.Contains(t, out.String(), "[y/N]")
	}
}

func TestSpinnerStartStop(t *testing.T) {
	var buf syncBuffer
	s := NewSpinnerTo(&buf, "connecting")
	s.Start()
	s.Stop()
	assert.Contains(t, buf.String(), "connecting")
}
