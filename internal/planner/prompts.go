package planner

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed prompts/*.tmpl
var defaultPrompts embed.FS

const (
	stageAFile = "stage_a.tmpl"
	stageBFile = "stage_b.tmpl"
)

// PromptData is what the stage templates can reference.
type PromptData struct {
	State       string
	Instruction string
	MaxActions  int
	Question    string
	Answer      string
}

// PromptSet holds the parsed Stage A and Stage B templates. Files with the
// same names in the override directory replace the built-in ones.
type PromptSet struct {
	stageA *template.Template
	stageB *template.Template
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *PromptSet {
	ps, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return ps
}

func LoadPrompts(dir string) (*PromptSet, error) {
	a, err := loadTemplate(dir, stageAFile)
	if err != nil {
		return nil, err
	}
	b, err := loadTemplate(dir, stageBFile)
	if err != nil {
		return nil, err
	}
	return &PromptSet{stageA: a, stageB: b}, nil
}

func loadTemplate(dir, name string) (*template.Template, error) {
	var data []byte
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			data = b
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	if data == nil {
		b, err := defaultPrompts.ReadFile("prompts/" + name)
		if err != nil {
			return nil, err
		}
		data = b
	}
	t, err := template.New(name).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	return t, nil
}

func (ps *PromptSet) StageA(d PromptData) (string, error) { return render(ps.stageA, d) }
func (ps *PromptSet) StageB(d PromptData) (string, error) { return render(ps.stageB, d) }

func render(t *template.Template, d PromptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
