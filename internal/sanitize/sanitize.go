// Package sanitize strips unsafe markup from user-supplied free text before
// it is persisted or returned. The policy is bluemonday's UGC default: basic
// inline formatting survives, script content and non-allow-listed tags do
// not. Sanitizing already-clean text is a no-op, so stored replies are run
// through the gate again on every detail read.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = bluemonday.UGCPolicy()

// Clean returns text with unsafe markup removed. Safe for concurrent use.
func Clean(text string) string {
	return policy.Sanitize(text)
}
