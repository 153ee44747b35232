/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package poicheck

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[94m"
	colorMagenta = "\033[95m"
	colorCyan    = "\033[96m"
	colorGray    = "\033[90m"
	colorBold    = "\033[1m"
)

// report renders results for a human. It never affects the outcome of a
// command.
type report struct {
	w     io.Writer
	color bool
}

func newReport(w io.Writer) *report {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &report{w: w, color: color}
}

func (r *report) paint(color string, s string) string {
	if !r.color {
		return s
	}
	return color + s + colorReset
}

func (r *report) header(title string) {
	rule := r.paint(colorCyan, strings.Repeat("=", 80))
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n", rule, r.paint(colorBold, title), rule)
}

func (r *report) section(title string) {
	fmt.Fprintf(r.w, "\n%s\n%s\n", r.paint(colorYellow, title), r.paint(colorYellow, strings.Repeat("-", len(title))))
}

func (r *report) info(label string, value any) {
	fmt.Fprintf(r.w, "%s: %v\n", r.paint(colorBlue, label), value)
}

func (r *report) success(msg string) {
	fmt.Fprintf(r.w, "%s %s\n", r.paint(colorGreen, "✓"), r.paint(colorGreen, msg))
}

func (r *report) failure(msg string) {
	fmt.Fprintf(r.w, "%s %s\n", r.paint(colorRed, "✗"), r.paint(colorRed, msg))
}

func (r *report) warning(msg string) {
	fmt.Fprintf(r.w, "%s %s\n", r.paint(colorYellow, "⚠"), r.paint(colorYellow, msg))
}

func (r *report) probes(res *divergence.SearchResult) {
	r.section("Probes")
	for _, p := range res.Probes {
		status := r.paint(colorGreen, "all proofs match")
		if p.Diverged() {
			status = r.paint(colorRed, fmt.Sprintf("divergence (%d indexers)", len(p.Disagreeing)))
		}
		line := fmt.Sprintf("%s block %d: %s", r.paint(colorCyan, "→"), p.Checkpoint, status)
		if len(p.Unreachable) > 0 {
			line += r.paint(colorGray, fmt.Sprintf(", %d unreachable", len(p.Unreachable)))
		}
		fmt.Fprintln(r.w, line)
	}
}

func (r *report) summary(res *divergence.SearchResult) {
	fmt.Fprintln(r.w)
	if res.Found {
		r.failure(fmt.Sprintf("Divergence found at block %d", res.Divergence))
		return
	}
	r.success(fmt.Sprintf("No divergence found between blocks %d and %d", res.Range.Start, res.Range.End))
}

func (r *report) failures(s *divergence.Snapshot) {
	if len(s.Failures) == 0 {
		return
	}
	r.warning(fmt.Sprintf("Failed to fetch proof of indexing from %d indexer(s)", len(s.Failures)))
	ids := make([]divergence.NodeID, 0, len(s.Failures))
	for id := range s.Failures {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(r.w, "  • %s: %s\n", r.paint(colorGray, string(id)), r.paint(colorGray, s.Failures[id].Error()))
	}
}

// groups prints one table per digest group. trusted may be empty.
func (r *report) groups(s *divergence.Snapshot, groups []divergence.DigestGroup, peers divergence.PeerSet, trusted divergence.NodeID) {
	r.section(fmt.Sprintf("Proofs of indexing at block %d", s.Checkpoint))
	if len(groups) == 0 {
		r.warning("No proofs of indexing found")
		return
	}
	fmt.Fprintf(r.w, "%d indexer(s) reported %d unique proof(s)\n", len(s.Digests), len(groups))

	for _, g := range groups {
		status := ""
		switch {
		case trusted == "":
		case g.IsCorrect:
			status = r.paint(colorGreen, "✓ CORRECT ")
		default:
			status = r.paint(colorRed, "✗ DIVERGED ")
		}
		fmt.Fprintf(r.w, "\n%s%s %s\n", status, r.paint(colorYellow, "POI:"), g.Digest)

		table := tablewriter.NewWriter(r.w)
		table.SetHeader([]string{"Indexer", "URL"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		for _, id := range g.Members {
			name := string(id)
			if id == trusted {
				name += " (reference)"
			}
			table.Append([]string{name, peers[id].Endpoint})
		}
		table.Render()
	}
}

func (r *report) confirmation(c *divergence.Confirmation) {
	r.section("Monotonicity check")
	if c.Monotonic() {
		r.success(fmt.Sprintf("Divergence persists at all %d sampled block(s) above %d", len(c.Probes), c.Divergence))
		return
	}
	blocks := make([]string, 0, len(c.Converged))
	for _, cp := range c.Converged {
		blocks = append(blocks, fmt.Sprint(cp))
	}
	r.warning(fmt.Sprintf("Proofs match again at block(s) %s; the reported block may not be the first divergence", strings.Join(blocks, ", ")))
	fmt.Fprintln(r.w, r.paint(colorMagenta, "  divergence appears transient, consider narrowing the range"))
}
