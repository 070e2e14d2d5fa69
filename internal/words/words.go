package words

import (
	_ "embed"
	"math/rand"
	"strings"
)

//go:embed words.txt
var raw string

var pool = load(raw)

func load(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(s) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Random returns n words drawn from the common-word pool. Words repeat once
// n exceeds the pool size, the way a timed test keeps feeding text.
func Random(n int) []string {
	if n <= 0 {
		return nil
	}

	out := make([]string, 0, n)
	for len(out) < n {
		remaining := n - len(out)
		perm := rand.Perm(len(pool))
		if remaining < len(perm) {
			perm = perm[:remaining]
		}
		for _, i := range perm {
			out = append(out, pool[i])
		}
	}
	return out
}

// Count returns the pool size.
func Count() int {
	return len(pool)
}
