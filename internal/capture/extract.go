// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/llmemo-dev/llmemo/internal/store"
)

var langClass = regexp.MustCompile(`language-(\w+)`)

// parseCandidate parses a serialized element and returns its root node.
// html.Parse always builds a full document, so the candidate is the
// first element under body.
func parseCandidate(outerHTML string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(outerHTML))
	if err != nil {
		return nil, err
	}
	var body *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if body == nil || body.FirstChild == nil {
		return nil, nil
	}
	return body.FirstChild, nil
}

// ExtractText renders a candidate element to plain text. Interactive
// chrome (buttons, icons, copy controls) is dropped, code blocks are
// fenced with their language, and whitespace is normalized. Returns ""
// when the remaining text is shorter than two characters.
func ExtractText(outerHTML string) string {
	root, err := parseCandidate(outerHTML)
	if err != nil || root == nil {
		return ""
	}

	var b strings.Builder
	renderText(&b, root)

	text := collapseBlankLines(b.String())
	if len(strings.TrimSpace(text)) < 2 {
		return ""
	}
	return strings.TrimSpace(text)
}

func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			// Indentation between elements is formatting, not content.
			if !strings.Contains(n.Data, "\n") && n.Data != "" {
				b.WriteString(" ")
			}
			return
		}
		b.WriteString(collapseSpaces(n.Data))
		return
	case html.ElementNode:
		if isStripped(n) {
			return
		}
		if n.Data == "pre" {
			writeCodeFence(b, n)
			return
		}
		if n.Data == "br" {
			b.WriteString("\n")
			return
		}
	default:
		return
	}

	block := isBlock(n.Data)
	if block {
		ensureNewline(b)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}
	if block {
		ensureNewline(b)
	}
}

// isStripped reports whether an element is UI chrome rather than
// message content.
func isStripped(n *html.Node) bool {
	switch n.Data {
	case "button", "svg", "script", "style", "mat-icon":
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "role":
			if a.Val == "button" {
				return true
			}
		case "aria-label":
			if strings.Contains(strings.ToLower(a.Val), "copy") {
				return true
			}
		case "class":
			if strings.Contains(a.Val, "copy-button") || strings.Contains(a.Val, "code-block-header") {
				return true
			}
		}
	}
	return false
}

// writeCodeFence renders a pre element as a fenced code block, pulling
// the language from the nested code element's class when present.
func writeCodeFence(b *strings.Builder, pre *html.Node) {
	lang := ""
	var code *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if code != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "code" {
			code = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(pre)

	src := pre
	if code != nil {
		src = code
		for _, a := range code.Attr {
			if a.Key == "class" {
				if m := langClass.FindStringSubmatch(a.Val); len(m) == 2 {
					lang = m[1]
				}
			}
		}
	}

	var raw strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			raw.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && isStripped(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(src)

	ensureNewline(b)
	b.WriteString("```" + lang + "\n")
	b.WriteString(strings.Trim(raw.String(), "\n"))
	b.WriteString("\n```\n")
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "ul", "ol", "blockquote", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "table", "section", "article":
		return true
	}
	return false
}

func ensureNewline(b *strings.Builder) {
	s := b.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
}

var spaceRun = regexp.MustCompile(`[ \t\r\f]+`)

func collapseSpaces(s string) string {
	return spaceRun.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " ")
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}

// ClassifyRole decides whether a candidate element is a user or
// assistant turn using the profile's markers. Ambiguous turns default
// to assistant, matching how provider UIs style replies as the
// unmarked case.
func ClassifyRole(outerHTML string, p *Profile) store.MessageRole {
	root, err := parseCandidate(outerHTML)
	if err != nil || root == nil {
		return store.MessageRoleAssistant
	}
	for _, m := range p.UserMarkers {
		if matchMarker(root, m) {
			return store.MessageRoleUser
		}
	}
	for _, m := range p.AssistantMarkers {
		if matchMarker(root, m) {
			return store.MessageRoleAssistant
		}
	}
	return store.MessageRoleAssistant
}

// matchMarker reports whether the marker matches the node or any
// descendant.
func matchMarker(root *html.Node, m Marker) bool {
	attr, attrVal, ok := m.attrSelector()
	var match func(*html.Node) bool
	match = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if ok && a.Key == attr && (attrVal == "" || a.Val == attrVal) {
					return true
				}
				if m.Attr != "" && a.Key == m.Attr && a.Val == m.AttrValue {
					return true
				}
				if m.ClassFragment != "" && a.Key == "class" && strings.Contains(a.Val, m.ClassFragment) {
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				return true
			}
		}
		return false
	}
	return match(root)
}

var attrSelectorRe = regexp.MustCompile(`^\[([\w-]+)(?:="([^"]*)")?\]$`)

// attrSelector decodes the simple `[attr="value"]` selector form used by
// the built-in profiles.
func (m Marker) attrSelector() (attr, value string, ok bool) {
	if m.Selector == "" {
		return "", "", false
	}
	sub := attrSelectorRe.FindStringSubmatch(m.Selector)
	if sub == nil {
		return "", "", false
	}
	return sub[1], sub[2], true
}
