// Package langtag builds the ordered language candidate chain used to negotiate recognizer support.
package langtag

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// DefaultFallback is the tag every recognizer is assumed to support.
const DefaultFallback = "en-US"

// DefaultVariants lists safe regional variants per primary language family.
func DefaultVariants() map[string][]string {
	return map[string][]string{
		"en": {"en-AU", "en-GB", "en-US", "en-CA", "en-IN"},
	}
}

// Policy configures chain construction.
type Policy struct {
	// Variants maps a primary language subtag to its preferred regional variants.
	Variants map[string][]string
	// Fallback terminates every chain.
	Fallback string
}

// DefaultPolicy returns the built-in English-first policy.
func DefaultPolicy() Policy {
	return Policy{Variants: DefaultVariants(), Fallback: DefaultFallback}
}

// Chain is an immutable, duplicate-free ordered list of language tags.
type Chain struct {
	tags []string
}

// Build assembles requested + family variants + fallback, dropping duplicates.
// The fallback always closes the chain; a request for the fallback itself is a
// single-element chain since nothing could follow it.
func Build(requested string, policy Policy) Chain {
	fallback := strings.TrimSpace(policy.Fallback)
	if fallback == "" {
		fallback = DefaultFallback
	}
	fallbackKey := canonicalKey(fallback)

	var (
		tags []string
		seen = make(map[string]struct{})
	)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		key := canonicalKey(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	requested = strings.TrimSpace(requested)
	if requested != "" && canonicalKey(requested) == fallbackKey {
		return Chain{tags: []string{requested}}
	}
	add(requested)

	family := Family(requested)
	if family == "" {
		family = Family(fallback)
	}
	for _, variant := range policy.Variants[family] {
		if canonicalKey(variant) == fallbackKey {
			continue
		}
		add(variant)
	}
	add(fallback)

	return Chain{tags: tags}
}

// Len returns the number of candidates.
func (c Chain) Len() int {
	return len(c.tags)
}

// At returns the candidate at index i, or "" when out of range.
func (c Chain) At(i int) string {
	if i < 0 || i >= len(c.tags) {
		return ""
	}
	return c.tags[i]
}

// Tags returns a copy of the candidates.
func (c Chain) Tags() []string {
	return append([]string(nil), c.tags...)
}

// Family returns the lowercase primary language subtag of tag, or "" when unparseable.
func Family(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		head, _, _ := strings.Cut(strings.ReplaceAll(tag, "_", "-"), "-")
		return strings.ToLower(head)
	}
	base, _ := parsed.Base()
	return base.String()
}

// canonicalKey folds case and separator differences so "en-us" and "en_US" collide.
func canonicalKey(tag string) string {
	normalized := strings.ReplaceAll(tag, "_", "-")
	if parsed, err := language.Parse(normalized); err == nil {
		return strings.ToLower(parsed.String())
	}
	return strings.ToLower(normalized)
}

// FromPOSIXLocale converts "en_AU.UTF-8" or "de_DE@euro" into a BCP-47 tag.
// "C" and "POSIX" have no language and yield "".
func FromPOSIXLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" {
		return ""
	}
	parsed, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return parsed.String()
}

// Ambient resolves the caller's locale from configured default then LC_ALL, LC_MESSAGES, LANG.
func Ambient(configured string) string {
	if tag := strings.TrimSpace(configured); tag != "" {
		return tag
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag := FromPOSIXLocale(os.Getenv(key)); tag != "" {
			return tag
		}
	}
	return ""
}
