package agent

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
)

// ErrInvalidPrompts is wrapped when a prompt file cannot be loaded or a
// template does not render.
var ErrInvalidPrompts = errors.New("invalid prompts")

// PromptTemplates holds the raw text/template sources. Templates see the
// fields of promptData: .Question, .Plan, .Subtask and .Results.
type PromptTemplates struct {
	PlannerSystem  string `toml:"planner_system"`
	PlannerUser    string `toml:"planner_user"`
	SubtaskSystem  string `toml:"subtask_system"`
	SubtaskUser    string `toml:"subtask_user"`
	Retry          string `toml:"retry"`
	Reflection     string `toml:"reflection"`
	ComposerSystem string `toml:"composer_system"`
	ComposerUser   string `toml:"composer_user"`
}

// DefaultPromptTemplates returns the built-in prompts for the XYZ help desk.
func DefaultPromptTemplates() PromptTemplates {
	return PromptTemplates{
		PlannerSystem: `You are the planning stage of a help-desk assistant for the XYZ system.
Break the user's question into the smallest set of independent subtasks that,
once answered, fully answer the question. Each subtask must be a
self-contained instruction that can be researched on its own with the
available search tools (the XYZ manuals and the past Q&A archive).
Do not answer the question yourself.`,

		PlannerUser: `Create a plan for the following question.

Question: {{.Question}}`,

		SubtaskSystem: `You are a help-desk agent for the XYZ system. You answer one subtask of
a larger plan using only information returned by the search tools.

Steps:
1. Choose the search tools and arguments most likely to find the answer.
   Use search_xyz_manual with short keywords (error codes, feature names)
   and search_xyz_qa with a natural-language question.
2. Read the tool results carefully.
3. Write a concise answer to the subtask based only on the results. If the
   results do not contain the answer, say what is missing.

Never invent procedures, error codes or settings that do not appear in the
results.`,

		SubtaskUser: `Answer the subtask below.

User question: {{.Question}}

Plan:
{{numbered .Plan}}

Subtask: {{.Subtask}}`,

		Retry: `The previous answer was judged insufficient. Following the reflection
above, choose different tools or different search arguments and try again.`,

		Reflection: `Evaluate the answer you just wrote for the subtask.
Describe objectively what the tool results showed and whether the answer
satisfies the subtask at a minimum level. If it does not, explain what
should be searched for next. Mark it completed when the minimum
requirements are met, even if the answer could still be improved.`,

		ComposerSystem: `You are a help-desk assistant for the XYZ system. Write the final reply
to the user from the subtask answers you are given.

- Answer the user's question directly and politely.
- Use only information contained in the subtask answers.
- If a subtask could not be answered, say so honestly and suggest
  contacting support.
- Do not mention subtasks, plans or tools.`,

		ComposerUser: `Question: {{.Question}}

Plan:
{{numbered .Plan}}

Subtask answers:
{{range .Results}}- {{.Task}}: {{.Answer}}
{{end}}`,
	}
}

// SubtaskAnswer is the projection of a SubtaskResult passed to the composer
// prompt.
type SubtaskAnswer struct {
	Task   string
	Answer string
}

type promptData struct {
	Question string
	Plan     Plan
	Subtask  string
	Results  []SubtaskAnswer
}

type promptKey int

const (
	promptPlannerSystem promptKey = iota
	promptPlannerUser
	promptSubtaskSystem
	promptSubtaskUser
	promptRetry
	promptReflection
	promptComposerSystem
	promptComposerUser
)

var promptNames = map[promptKey]string{
	promptPlannerSystem:  "planner_system",
	promptPlannerUser:    "planner_user",
	promptSubtaskSystem:  "subtask_system",
	promptSubtaskUser:    "subtask_user",
	promptRetry:          "retry",
	promptReflection:     "reflection",
	promptComposerSystem: "composer_system",
	promptComposerUser:   "composer_user",
}

var promptFuncs = template.FuncMap{
	"numbered": func(items []string) string {
		var b strings.Builder
		for i, item := range items {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%d. %s", i+1, item)
		}
		return b.String()
	},
}

// Prompts is a compiled, immutable prompt set.
type Prompts struct {
	templates map[promptKey]*template.Template
}

// NewPrompts compiles tpl. Empty fields fall back to the defaults. Every
// template is rendered once against sample data so that errors surface at
// construction rather than mid-run.
func NewPrompts(tpl PromptTemplates) (*Prompts, error) {
	defaults := DefaultPromptTemplates()
	sources := map[promptKey][2]string{
		promptPlannerSystem:  {tpl.PlannerSystem, defaults.PlannerSystem},
		promptPlannerUser:    {tpl.PlannerUser, defaults.PlannerUser},
		promptSubtaskSystem:  {tpl.SubtaskSystem, defaults.SubtaskSystem},
		promptSubtaskUser:    {tpl.SubtaskUser, defaults.SubtaskUser},
		promptRetry:          {tpl.Retry, defaults.Retry},
		promptReflection:     {tpl.Reflection, defaults.Reflection},
		promptComposerSystem: {tpl.ComposerSystem, defaults.ComposerSystem},
		promptComposerUser:   {tpl.ComposerUser, defaults.ComposerUser},
	}

	sample := promptData{
		Question: "sample question",
		Plan:     Plan{"first", "second"},
		Subtask:  "first",
		Results:  []SubtaskAnswer{{Task: "first", Answer: "answer"}},
	}

	p := &Prompts{templates: make(map[promptKey]*template.Template, len(sources))}
	for key, src := range sources {
		text := src[0]
		if strings.TrimSpace(text) == "" {
			text = src[1]
		}
		name := promptNames[key]
		t, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrompts, name, err)
		}
		if err := t.Execute(&bytes.Buffer{}, sample); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrompts, name, err)
		}
		p.templates[key] = t
	}
	return p, nil
}

// DefaultPrompts returns the compiled built-in prompts.
func DefaultPrompts() *Prompts {
	p, err := NewPrompts(PromptTemplates{})
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPrompts reads overrides from a TOML file. An empty path yields the
// defaults.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrompts, err)
	}

	var tpl PromptTemplates
	md, err := toml.DecodeFile(path, &tpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrompts, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalidPrompts, path, undecoded)
	}
	return NewPrompts(tpl)
}

func (p *Prompts) render(key promptKey, data promptData) string {
	var b strings.Builder
	// Templates were executed against sample data in NewPrompts.
	_ = p.templates[key].Execute(&b, data)
	return b.String()
}
