package doc

import (
	"errors"
	"strings"

	"github.com/coderoomhq/coderoom-backend/internal/protocol"
)

var ErrRangeOutOfBounds = errors.New("range out of bounds")

// Document is an immutable line buffer. Apply returns a new Document; the
// receiver is never mutated, so a rejected op leaves the caller's copy intact.
type Document struct {
	lines [][]rune
}

func New(text string) Document {
	raw := strings.Split(text, "\n")
	lines := make([][]rune, len(raw))
	for i, l := range raw {
		lines[i] = []rune(l)
	}
	return Document{lines: lines}
}

func (d Document) Text() string {
	var b strings.Builder
	for i, l := range d.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(l))
	}
	return b.String()
}

func (d Document) LineCount() int { return len(d.lines) }

// LineLen returns the character length of the 1-based line i, or -1 if i is
// out of range.
func (d Document) LineLen(i int) int {
	if i < 1 || i > len(d.lines) {
		return -1
	}
	return len(d.lines[i-1])
}

// Apply replaces op's half-open range with op.Text and returns the resulting
// document. The range is validated against d's current extent; any violation
// returns ErrRangeOutOfBounds and d unchanged.
func Apply(d Document, op protocol.EditOp) (Document, error) {
	if err := d.validate(op); err != nil {
		return d, err
	}

	prefix := string(d.lines[op.StartLine-1][:op.StartCol-1])
	suffix := string(d.lines[op.EndLine-1][op.EndCol-1:])
	replaced := strings.Split(prefix+op.Text+suffix, "\n")

	lines := make([][]rune, 0, len(d.lines)-(op.EndLine-op.StartLine+1)+len(replaced))
	lines = append(lines, d.lines[:op.StartLine-1]...)
	for _, l := range replaced {
		lines = append(lines, []rune(l))
	}
	lines = append(lines, d.lines[op.EndLine:]...)
	return Document{lines: lines}, nil
}

// ApplyAll applies ops in order. The first failure rejects the whole batch
// and returns d unchanged.
func ApplyAll(d Document, ops []protocol.EditOp) (Document, error) {
	out := d
	for _, op := range ops {
		var err error
		out, err = Apply(out, op)
		if err != nil {
			return d, err
		}
	}
	return out, nil
}

func (d Document) validate(op protocol.EditOp) error {
	if op.StartLine < 1 || op.StartCol < 1 || op.EndLine < 1 || op.EndCol < 1 {
		return ErrRangeOutOfBounds
	}
	if op.EndLine > len(d.lines) || op.StartLine > op.EndLine {
		return ErrRangeOutOfBounds
	}
	if op.StartLine == op.EndLine && op.StartCol > op.EndCol {
		return ErrRangeOutOfBounds
	}
	// Column may point one past the last character (end-of-line insertion).
	if op.StartCol > len(d.lines[op.StartLine-1])+1 {
		return ErrRangeOutOfBounds
	}
	if op.EndCol > len(d.lines[op.EndLine-1])+1 {
		return ErrRangeOutOfBounds
	}
	return nil
}
