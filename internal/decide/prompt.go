package decide

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"proxyfarm/internal/textutil"
)

// maxListed caps how many subjects a prompt prints before summarizing.
const maxListed = 10

// Prompt asks questions on a terminal. Answers may be the option name, a
// unique prefix of it, or its 1-based number; an empty line takes the default.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewPrompt returns a prompt reading from in and writing to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{In: in, Out: out, reader: bufio.NewReader(in)}
}

func (p *Prompt) Ask(ctx context.Context, q Question) (Decision, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	p.render(q)
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(p.Out, "%s [%s]: ", textutil.Label(string(q.Kind)), p.optionHint(q))
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return q.Default, nil
			}
			return "", fmt.Errorf("read answer: %w", err)
		}
		if d, ok := match(q, strings.TrimSpace(line)); ok {
			return d, nil
		}
		fmt.Fprintf(p.Out, "Please answer one of: %s\n", joinOptions(q.Options))
	}
	return "", fmt.Errorf("%w: no valid answer for %s", ErrInvalidDecision, q.Kind)
}

func (p *Prompt) render(q Question) {
	fmt.Fprintln(p.Out, q.Prompt)
	for i, subject := range q.Subjects {
		if i == maxListed {
			fmt.Fprintf(p.Out, "  ... and %d more\n", len(q.Subjects)-maxListed)
			break
		}
		fmt.Fprintf(p.Out, "  - %s\n", subject)
	}
}

func (p *Prompt) optionHint(q Question) string {
	parts := make([]string, len(q.Options))
	for i, o := range q.Options {
		label := fmt.Sprintf("%d) %s", i+1, o)
		if o == q.Default {
			label += "*"
		}
		parts[i] = label
	}
	return strings.Join(parts, " ")
}

func match(q Question, answer string) (Decision, bool) {
	if answer == "" {
		return q.Default, q.Default != ""
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(q.Options) {
			return q.Options[n-1], true
		}
		return "", false
	}
	answer = strings.ToLower(answer)
	var found Decision
	for _, o := range q.Options {
		name := string(o)
		if name == answer {
			return o, true
		}
		if strings.HasPrefix(name, answer) {
			if found != "" {
				return "", false
			}
			found = o
		}
	}
	return found, found != ""
}
