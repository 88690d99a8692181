package audit

import "fmt"

// equal compares values by their printed form, which is what ends up in the JSON diff.
func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
