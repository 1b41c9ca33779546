// Package dialog maps an unordered pair of usernames to the canonical
// identifier of their private conversation.
package dialog

const prefix = "dm:"

// Key returns the conversation key for the pair. Key(a, b) == Key(b, a).
func Key(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return prefix + userA + ":" + userB
}
