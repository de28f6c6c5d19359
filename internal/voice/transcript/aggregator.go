// Package transcript folds per-speaker text fragments into display lines.
package transcript

// Speaker identifies who produced a fragment.
type Speaker int

const (
	User Speaker = iota
	Model
)

func (s Speaker) String() string {
	if s == User {
		return "user"
	}
	return "model"
}

// Line is one contiguous span of speech attributed to a single speaker.
type Line struct {
	Speaker Speaker
	Text    string
}

// Aggregator merges an ordered stream of fragments into lines: a fragment
// from the same speaker as the line being built appends to it (space
// separated), a speaker change starts a new line. There is no true
// end-of-turn signal, so this is a heuristic: rapid alternation yields many
// short lines, a monologue yields one growing line. That approximation is
// part of the display contract and is kept as is.
type Aggregator struct {
	lines []Line
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Push folds one fragment in arrival order and returns the updated line.
func (a *Aggregator) Push(text string, speaker Speaker) Line {
	if n := len(a.lines); n > 0 && a.lines[n-1].Speaker == speaker {
		a.lines[n-1].Text += " " + text
		return a.lines[n-1]
	}
	a.lines = append(a.lines, Line{Speaker: speaker, Text: text})
	return a.lines[len(a.lines)-1]
}

// Lines returns a copy of the aggregated lines in arrival order.
func (a *Aggregator) Lines() []Line {
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}
