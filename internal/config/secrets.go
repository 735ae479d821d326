package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads secrets interactively. When the input is a terminal the
// typed characters are not echoed.
type Prompter struct {
	// in is the input the secrets are read from.
	in *os.File
	// out receives the prompts.
	out io.Writer
	// lines is used when in is not a terminal (piped input, tests).
	lines *bufio.Reader
}

// NewPrompter constructs a Prompter reading from in and writing prompts to out.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// Secret prompts for a single secret value.
func (p *Prompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("config: read %s: %w", label, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.in)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("config: read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// PromptMissing asks for every credential the selected providers need but
// the environment did not supply. Values are stored on s only; they are
// never written back to the environment or to disk.
func (p *Prompter) PromptMissing(s *Settings) error {
	type need struct {
		label string
		dst   *string
	}
	var needs []need

	if s.Parse.Provider == "hosted" && s.Parse.APIKey == "" {
		needs = append(needs, need{"Parsing API key (PARSE_API_KEY)", &s.Parse.APIKey})
	}

	switch s.Model.Provider {
	case "openai":
		if s.Model.OpenAIKey == "" {
			needs = append(needs, need{"OpenAI API key (OPENAI_API_KEY)", &s.Model.OpenAIKey})
		}
	case "azure":
		if s.Model.AzureKey == "" {
			needs = append(needs, need{"Azure OpenAI API key (AZURE_OPENAI_API_KEY)", &s.Model.AzureKey})
		}
	case "gemini":
		if s.Model.GoogleKey == "" {
			needs = append(needs, need{"Google API key (GOOGLE_API_KEY)", &s.Model.GoogleKey})
		}
	case "ark":
		if s.Model.ArkKey == "" {
			needs = append(needs, need{"Ark API key (ARK_API_KEY)", &s.Model.ArkKey})
		}
	case "anthropic":
		if s.Model.AnthropicKey == "" {
			needs = append(needs, need{"Anthropic API key (ANTHROPIC_API_KEY)", &s.Model.AnthropicKey})
		}
	}

	for _, n := range needs {
		v, err := p.Secret(n.label)
		if err != nil {
			return err
		}
		*n.dst = v
	}

	// The embedder inherits the chat key unless it has its own.
	if s.Embedding.APIKey == "" {
		switch s.Embedding.Provider {
		case "openai":
			s.Embedding.APIKey = s.Model.OpenAIKey
		case "azure":
			s.Embedding.APIKey = s.Model.AzureKey
		}
	}
	if s.Embedding.APIKey == "" && (s.Embedding.Provider == "openai" || s.Embedding.Provider == "azure") {
		v, err := p.Secret("Embedding API key (EMBEDDING_API_KEY)")
		if err != nil {
			return err
		}
		s.Embedding.APIKey = v
	}
	return nil
}
