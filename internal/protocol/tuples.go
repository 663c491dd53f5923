package protocol

import (
	"encoding/json"
	"fmt"
)

// The positional payloads below keep the wire compact. Internally everything
// is a named struct; the tuple shape exists only in MarshalJSON/UnmarshalJSON.

// EditOp replaces the half-open character range [start, end) with Text.
// Lines and columns are 1-based; columns count characters, not bytes.
// Wire form: [text, startLine, startCol, endLine, endCol].
type EditOp struct {
	Text      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (op EditOp) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{op.Text, op.StartLine, op.StartCol, op.EndLine, op.EndCol})
}

func (op *EditOp) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: edit op is not a tuple", ErrMalformedMessage)
	}
	if len(parts) != 5 {
		return fmt.Errorf("%w: edit op has %d fields, want 5", ErrMalformedMessage, len(parts))
	}
	if err := json.Unmarshal(parts[0], &op.Text); err != nil {
		return fmt.Errorf("%w: edit op text: %v", ErrMalformedMessage, err)
	}
	for i, dst := range []*int{&op.StartLine, &op.StartCol, &op.EndLine, &op.EndCol} {
		if err := json.Unmarshal(parts[i+1], dst); err != nil {
			return fmt.Errorf("%w: edit op field %d: %v", ErrMalformedMessage, i+1, err)
		}
	}
	return nil
}

// Cursor is a caret position plus an optional selection.
// Wire form: [posLine, posCol] or [posLine, posCol, selStartLine, selStartCol,
// selEndLine, selEndCol].
type Cursor struct {
	Line         int
	Col          int
	HasSelection bool
	SelStartLine int
	SelStartCol  int
	SelEndLine   int
	SelEndCol    int
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	if !c.HasSelection {
		return json.Marshal([]int{c.Line, c.Col})
	}
	return json.Marshal([]int{c.Line, c.Col, c.SelStartLine, c.SelStartCol, c.SelEndLine, c.SelEndCol})
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	var fields []int
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: cursor is not an int tuple", ErrMalformedMessage)
	}
	switch len(fields) {
	case 2:
		*c = Cursor{Line: fields[0], Col: fields[1]}
	case 6:
		*c = Cursor{
			Line: fields[0], Col: fields[1],
			HasSelection: true,
			SelStartLine: fields[2], SelStartCol: fields[3],
			SelEndLine: fields[4], SelEndCol: fields[5],
		}
	default:
		return fmt.Errorf("%w: cursor has %d fields, want 2 or 6", ErrMalformedMessage, len(fields))
	}
	return nil
}

// Pointer is a normalized telepointer coordinate. Wire form: [x, y].
type Pointer struct {
	X float64
	Y float64
}

func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{p.X, p.Y})
}

func (p *Pointer) UnmarshalJSON(data []byte) error {
	x, y, err := pairOfNumbers(data, "pointer")
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

// Scroll carries viewport offsets. Wire form: [scrollLeft, scrollTop].
type Scroll struct {
	Left float64
	Top  float64
}

func (s Scroll) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{s.Left, s.Top})
}

func (s *Scroll) UnmarshalJSON(data []byte) error {
	left, top, err := pairOfNumbers(data, "scroll")
	if err != nil {
		return err
	}
	s.Left, s.Top = left, top
	return nil
}

func pairOfNumbers(data []byte, what string) (float64, float64, error) {
	var fields []float64
	if err := json.Unmarshal(data, &fields); err != nil {
		return 0, 0, fmt.Errorf("%w: %s is not a numeric tuple", ErrMalformedMessage, what)
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %s has %d fields, want 2", ErrMalformedMessage, what, len(fields))
	}
	return fields[0], fields[1], nil
}
