package console

import "github.com/chzyer/readline"

// Prompt reads one line of input with the given prompt string.
func Prompt(prompt string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	return rl.Readline()
}
