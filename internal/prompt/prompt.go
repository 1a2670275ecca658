// Package prompt wraps the interactive tag collection behind a reader/writer
// pair so core logic stays non-interactive.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/i18n"
)

// Prompter reads interactive answers from in and echoes prompts to out.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// Tags collects key/value tag pairs until the user enters a blank key.
func (p *Prompter) Tags(ctx context.Context) map[string]string {
	tags := map[string]string{}
	fmt.Fprintln(p.out, i18n.T(ctx, "TagsIntro"))
	for {
		fmt.Fprint(p.out, i18n.T(ctx, "EnterTagKey"))
		key, ok := p.readLine()
		if !ok || key == "" {
			break
		}
		fmt.Fprint(p.out, i18n.Td(ctx, "EnterTagValue", map[string]any{"Tag": key}))
		value, _ := p.readLine()
		tags[key] = value
	}
	return tags
}

func (p *Prompter) readLine() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}
