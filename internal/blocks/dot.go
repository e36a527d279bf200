// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package blocks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotandev/stackopt/internal/coverage"
)

const maxInstrShown = 20

var branchColors = map[coverage.BranchType]string{
	coverage.OK:    "palegreen",
	coverage.THROW: "lightsalmon",
	coverage.ABORT: "lightcoral",
}

// DOT renders the graph in Graphviz format. Fall-through edges are solid,
// jump and handler edges dashed.
func (g *Graph) DOT(title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", title)
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=filled, fontname=\"Courier\"];\n")

	for _, b := range g.Blocks {
		first := g.Script.At(b.Start).Offset
		last := g.Script.At(b.Last()).Offset
		label := fmt.Sprintf("Block %d\\nPC: %d..%d\\n%s", b.Start, first, last, b.BranchType)

		for k, i := range b.Instructions {
			if k >= maxInstrShown {
				label += "\\n..."
				break
			}
			label += "\\n" + strings.ReplaceAll(g.Script.At(i).String(), "\"", "\\\"")
		}

		color, ok := branchColors[b.BranchType]
		if !ok {
			color = "lightgrey"
		}
		fmt.Fprintf(&sb, "  b%d [label=\"%s\", fillcolor=%s];\n", b.Start, label, color)

		if b.Next != nil {
			fmt.Fprintf(&sb, "  b%d -> b%d;\n", b.Start, b.Next.Start)
		}
		targets := b.JumpTargets.ToSlice()
		sort.Ints(targets)
		for _, t := range targets {
			fmt.Fprintf(&sb, "  b%d -> b%d [style=dashed];\n", b.Start, t)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
