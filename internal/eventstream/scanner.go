package eventstream

import (
	"bufio"
	"io"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineLength     = 1024 * 1024
)

// NewLineScanner returns a scanner splitting r on newlines, accepting lines up
// to 1 MiB.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, initialLineBuffer), maxLineLength)
	return s
}
