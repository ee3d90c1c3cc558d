package client

import "strings"

// Pre-generated filler text for simulated chat messages.
const fillerText = `Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur. Excepteur sint occaecat cupidatat non proident, sunt in culpa qui officia deserunt mollit anim id est laborum.`

var fillerWords = strings.Fields(fillerText)

// FillerWordCount is the longest message MessageOfLength can produce.
var FillerWordCount = len(fillerWords)

// MessageOfLength returns filler text of n words, clamped to [1,
// FillerWordCount].
func MessageOfLength(n int) string {
	if n < 1 {
		n = 1
	}
	if n > len(fillerWords) {
		n = len(fillerWords)
	}
	return strings.Join(fillerWords[:n], " ")
}
