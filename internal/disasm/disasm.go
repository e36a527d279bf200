// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package disasm prints contract scripts as annotated listings.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/script"
)

// Options controls the listing.
type Options struct {
	// Coverage annotates each instruction with its branch type.
	Coverage *coverage.Result
	// Color forces ANSI colors on or off. Nil follows the terminal.
	Color *bool
	// HideUncovered omits instructions no entry point reaches.
	HideUncovered bool
}

// Printer writes listings.
type Printer struct {
	opts    Options
	palette map[coverage.BranchType]*color.Color
	label   *color.Color
}

// NewPrinter creates a printer.
func NewPrinter(opts Options) *Printer {
	p := &Printer{
		opts: opts,
		palette: map[coverage.BranchType]*color.Color{
			coverage.OK:        color.New(color.FgGreen),
			coverage.THROW:     color.New(color.FgYellow),
			coverage.ABORT:     color.New(color.FgRed),
			coverage.UNCOVERED: color.New(color.FgHiBlack),
		},
		label: color.New(color.FgCyan, color.Bold),
	}
	if opts.Color != nil {
		for _, c := range append(p.colors(), p.label) {
			if *opts.Color {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
	return p
}

func (p *Printer) colors() []*color.Color {
	out := make([]*color.Color, 0, len(p.palette))
	for _, c := range p.palette {
		out = append(out, c)
	}
	return out
}

// Fprint writes the listing of c to w. Entry points are printed as labels
// before their first instruction.
func (p *Printer) Fprint(w io.Writer, c *contract.Contract) error {
	labels := make(map[int][]string)
	for _, e := range c.Entries {
		labels[e.Index] = append(labels[e.Index], fmt.Sprintf("%s (%s)", e.Name, e.Kind))
	}

	s := c.Script
	for i := range s.Instructions {
		for _, l := range labels[i] {
			if _, err := fmt.Fprintln(w, p.label.Sprint(l+":")); err != nil {
				return err
			}
		}
		if p.opts.HideUncovered && p.opts.Coverage != nil && !p.opts.Coverage.Covered(i) {
			continue
		}
		if _, err := fmt.Fprintln(w, p.line(c, i)); err != nil {
			return err
		}
	}
	return nil
}

// String returns the listing of c.
func (p *Printer) String(c *contract.Contract) string {
	var sb strings.Builder
	_ = p.Fprint(&sb, c)
	return sb.String()
}

func (p *Printer) line(c *contract.Contract, i int) string {
	s := c.Script
	ins := s.At(i)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04x  %-12s %-16s", ins.Offset, ins.OpCode, operand(s, ins))

	if p.opts.Coverage != nil {
		b := p.opts.Coverage.At(i)
		sb.WriteString(" ")
		sb.WriteString(p.palette[b].Sprintf("%-9s", b))
	}
	if loc, ok := c.Debug.Locate(ins.Offset); ok {
		sb.WriteString(" ; ")
		sb.WriteString(loc)
	}
	return strings.TrimRight(sb.String(), " ")
}

// operand renders targets as absolute offsets and other operands as hex.
func operand(s *script.Script, ins *script.Instruction) string {
	switch {
	case ins.OpCode.IsTry():
		return fmt.Sprintf("catch=%s finally=%s", offsetOf(s, ins.Target), offsetOf(s, ins.Target2))
	case ins.OpCode.HasTarget():
		return "-> " + offsetOf(s, ins.Target)
	case len(ins.Operand) > 0:
		return fmt.Sprintf("%x", ins.Operand)
	default:
		return ""
	}
}

func offsetOf(s *script.Script, i int) string {
	if i == script.NoTarget {
		return "-"
	}
	if i >= s.Len() {
		return fmt.Sprintf("#%d", i)
	}
	return fmt.Sprintf("%04x", s.At(i).Offset)
}
