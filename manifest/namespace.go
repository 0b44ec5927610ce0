package manifest

import (
	"fmt"
	"strings"
)

// ToNamespace converts a dependency name to its default template prefix.
// "MyWidgets" -> "my-widgets", "ui_kit" -> "ui-kit", "models" -> "models"
func ToNamespace(s string) string {
	var words []string
	current := ""
	for i, r := range s {
		if r == '-' || r == '_' || r == ' ' {
			if current != "" {
				words = append(words, current)
				current = ""
			}
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				words = append(words, current)
				current = ""
			}
		}
		current += string(r)
	}
	if current != "" {
		words = append(words, current)
	}

	var result []string
	for _, w := range words {
		if w != "" {
			result = append(result, strings.ToLower(w))
		}
	}
	return strings.Join(result, "-")
}

// reservedNamespaces cannot prefix template names because they would
// escape or shadow the project's own source directories.
var reservedNamespaces = map[string]bool{
	".":  true,
	"..": true,
}

// CheckNamespace reports why ns cannot prefix template names, or nil.
// A namespace is a single path segment.
func CheckNamespace(ns string) error {
	switch {
	case ns == "":
		return fmt.Errorf("empty namespace")
	case reservedNamespaces[ns]:
		return fmt.Errorf("namespace %q is reserved", ns)
	case strings.ContainsAny(ns, `/\:`):
		return fmt.Errorf("namespace %q must be a single path segment", ns)
	}
	return nil
}

// SplitNamespace splits "ns/rest" into its namespace and the name inside
// it. Names without a slash have no namespace.
func SplitNamespace(name string) (ns, rest string) {
	if i := strings.IndexByte(name, '/'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
