package advisor

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// commandHelp lists the command grammar shown to the model.
var commandHelp = []string{
	`buy_crypto_price("symbol", amount, "summary")   buy amount dollars at the ask`,
	`buy_crypto_limit("symbol", amount, "summary", limit)   buy amount dollars when ask <= limit`,
	`sell_crypto_price("symbol", amount, "summary")   sell amount dollars at the bid`,
	`sell_crypto_limit("symbol", amount, "summary", limit)   sell amount dollars when bid >= limit`,
	`cancel_order(orderId)   cancel an open order`,
	`do_nothing()   no clear opportunity`,
}

// PromptFile 映射 prompts.yaml。
type PromptFile struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Templates are the parsed prompt templates.
type Templates struct {
	system *template.Template
	user   *template.Template
}

type systemVars struct {
	Now            string
	Symbols        []string
	InitialBalance string
	Interval       string
}

type userVars struct {
	Commands []string
}

// DefaultPrompts returns the embedded prompt file.
func DefaultPrompts() (PromptFile, error) {
	var pf PromptFile
	if err := yaml.Unmarshal(defaultPromptsYAML, &pf); err != nil {
		return PromptFile{}, fmt.Errorf("embedded prompts: %w", err)
	}
	return pf, nil
}

// LoadTemplates reads prompts from path; empty fields, or an empty path,
// fall back to the embedded defaults.
func LoadTemplates(path string) (*Templates, error) {
	pf, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts %s: %w", path, err)
		}
		var custom PromptFile
		if err := yaml.Unmarshal(raw, &custom); err != nil {
			return nil, fmt.Errorf("parse prompts %s: %w", path, err)
		}
		if strings.TrimSpace(custom.System) != "" {
			pf.System = custom.System
		}
		if strings.TrimSpace(custom.User) != "" {
			pf.User = custom.User
		}
	}
	return parseTemplates(pf)
}

func parseTemplates(pf PromptFile) (*Templates, error) {
	funcs := template.FuncMap{"join": strings.Join}
	sys, err := template.New("system").Funcs(funcs).Option("missingkey=error").Parse(pf.System)
	if err != nil {
		return nil, fmt.Errorf("system prompt: %w", err)
	}
	usr, err := template.New("user").Funcs(funcs).Option("missingkey=error").Parse(pf.User)
	if err != nil {
		return nil, fmt.Errorf("user prompt: %w", err)
	}
	return &Templates{system: sys, user: usr}, nil
}

func (t *Templates) renderSystem(v systemVars) (string, error) {
	var buf bytes.Buffer
	if err := t.system.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (t *Templates) renderUser() (string, error) {
	var buf bytes.Buffer
	if err := t.user.Execute(&buf, userVars{Commands: commandHelp}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
