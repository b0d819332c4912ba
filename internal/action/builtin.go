package action

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Print returns the local "print" action, which writes its output
// parameter to w.
func Print(w io.Writer) Action {
	var mu sync.Mutex
	return Action{
		Name:        "print",
		Description: "prints the output to the standard output, only print when asked.",
		Schema:      NewSchema().AddParam("output", "string", "the console output", true).Build(),
		Handler: func(_ context.Context, params map[string]any) (string, error) {
			out, ok := params["output"].(string)
			if !ok {
				return "", fmt.Errorf("missing string parameter %q", "output")
			}
			mu.Lock()
			defer mu.Unlock()
			if _, err := fmt.Fprintln(w, out); err != nil {
				return "", err
			}
			return "OK", nil
		},
	}
}
