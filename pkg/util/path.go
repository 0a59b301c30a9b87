package util

import "strings"

// JoinPath concatenates a root path and a sub-path with exactly one
// separator between them, regardless of how either side is written
func JoinPath(root, sub string) string {
	root = strings.TrimRight(root, "/")
	sub = strings.TrimLeft(sub, "/")
	return root + "/" + sub
}
