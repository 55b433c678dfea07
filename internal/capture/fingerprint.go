// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import "strconv"

// Fingerprint computes the dedup key for a message. Only the role and
// the first 200 characters of content participate, so trailing edits to
// a long message do not re-emit it. The hash is the classic djb-style
// rolling hash over UTF-16-ish code units, truncated to int32 and
// rendered base-36.
func Fingerprint(role, content string) string {
	if len(content) > 200 {
		content = content[:200]
	}
	s := role + ":" + content
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		return "-" + strconv.FormatInt(int64(-h), 36)
	}
	return strconv.FormatInt(int64(h), 36)
}
