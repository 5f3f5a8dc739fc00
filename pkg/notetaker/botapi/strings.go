package botapi

import "strings"

func lower(s string) string      { return strings.ToLower(s) }
func contains(s, sub string) bool { return strings.Contains(s, sub) }
func hasSuffix(s, suf string) bool { return strings.HasSuffix(s, suf) }
