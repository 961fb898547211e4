package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks for input the configuration did not provide.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter reads answers from r and writes questions to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(r), out: w}
}

// Ask prints label and returns the next trimmed input line. ok is false once
// the input is exhausted.
func (p *Prompter) Ask(label string) (answer string, ok bool) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

// FillCredentials prompts for the account id and token when they are empty.
func (p *Prompter) FillCredentials(cfg *Config) {
	if cfg.BusinessAccountID == "" {
		if v, ok := p.Ask("Business account ID for the Instagram Graph API"); ok {
			cfg.BusinessAccountID = v
		}
	}
	if cfg.AccessToken == "" {
		if v, ok := p.Ask("Access token for the Instagram Graph API"); ok {
			cfg.AccessToken = v
		}
	}
}
