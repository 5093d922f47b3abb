package dialog

import (
	"github.com/manifoldco/promptui"
)

// Confirm asks a yes/no question and reports whether the user agreed.
// With assumeYes set (the skip-confirmation switch) it agrees without
// prompting.
func Confirm(label string, assumeYes bool) (success bool) {
	if assumeYes {
		return true
	}

	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()

	success = err == nil

	return
}
