package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// confirm asks before a destructive run. It returns false on "n" or when
// input ends without an answer, and repeats the question on anything else.
func confirm(in io.Reader, out io.Writer, patterns []string) (bool, error) {
	fmt.Fprintf(out, "This will delete ANY key that matches any of the following patterns:\n%s\n", //nolint:errcheck // interactive output
		strings.Join(patterns, ", "))

	r := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Do you want to continue? [y/n]: ") //nolint:errcheck // interactive output
		line, err := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out) //nolint:errcheck // interactive output
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read answer: %w", err)
		}
	}
}
