package correlator

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/antonholmquist/jason"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownFingerprint groups detections that carry no usable attributes.
const UnknownFingerprint = "unknown"

const fingerprintSeparator = "|"

// descriptionKeys are tried in order when an attribute is an object.
var descriptionKeys = []string{"description", "label", "attribute", "name"}

type substitution struct {
	pattern *regexp.Regexp
	token   string
}

// substitutions map normalized descriptions to short canonical tokens.
// The first match wins.
var substitutions = []substitution{
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (?:an? )?(\w+) (?:shirt|t-shirt|tshirt|kaos|baju)$`), "baju-$1"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (?:an? )?(\w+) (?:jacket|hoodie|jaket)$`), "jaket-$1"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (?:an? )?(\w+) (?:hat|cap|topi)$`), "topi-$1"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (\w+) (?:pants|trousers|jeans|celana)$`), "celana-$1"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (?:an? )?(?:face )?mask$`), "masker"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) wearing (?:an? )?helmet$`), "helm"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) carrying (?:an? )?(\w+) (?:bag|backpack|tas)$`), "tas-$1"},
	{regexp.MustCompile(`^(?:an? )?(?:person|man|woman) with (\w+) hair$`), "rambut-$1"},
	{regexp.MustCompile(`^(?:an? )?(\w+) (?:motorcycle|motorbike|motor)$`), "motor-$1"},
	{regexp.MustCompile(`^(?:an? )?(\w+) (?:car|mobil)$`), "mobil-$1"},
}

var (
	spaceRe = regexp.MustCompile(`\s+`)
	slugRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fingerprint derives an order-independent identity string from a raw
// attribute payload. Nested lists are flattened; every description is
// mapped to a canonical token, empties are dropped and the remaining
// tokens are sorted, deduplicated and joined.
func Fingerprint(rawAttributes string) string {
	tokens := Tokens(rawAttributes)
	if len(tokens) == 0 {
		return UnknownFingerprint
	}
	return strings.Join(tokens, fingerprintSeparator)
}

// Tokens returns the sorted canonical tokens of a raw attribute payload.
func Tokens(rawAttributes string) []string {
	if strings.TrimSpace(rawAttributes) == "" {
		return nil
	}
	root, err := jason.NewValueFromBytes([]byte(rawAttributes))
	if err != nil {
		return nil
	}

	var tokens []string
	for _, desc := range flattenDescriptions(root, nil) {
		if tok := canonicalToken(desc); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

func flattenDescriptions(v *jason.Value, out []string) []string {
	if arr, err := v.Array(); err == nil {
		for _, item := range arr {
			out = flattenDescriptions(item, out)
		}
		return out
	}
	if s, err := v.String(); err == nil {
		return append(out, s)
	}
	if obj, err := v.Object(); err == nil {
		for _, key := range descriptionKeys {
			if s, err := obj.GetString(key); err == nil {
				return append(out, s)
			}
		}
		// {"attributes": [...]} wrappers
		if inner, err := obj.GetValue("attributes"); err == nil {
			return flattenDescriptions(inner, out)
		}
	}
	return out
}

// canonicalToken normalizes a description and applies the substitution
// table. Descriptions outside the table become a slug of their text.
func canonicalToken(desc string) string {
	s := normalize(desc)
	if s == "" {
		return ""
	}
	for _, sub := range substitutions {
		if m := sub.pattern.FindStringSubmatchIndex(s); m != nil {
			return string(sub.pattern.ExpandString(nil, sub.token, s, m))
		}
	}
	return strings.Trim(slugRe.ReplaceAllString(s, "-"), "-")
}

// normalize lowercases, strips diacritics and collapses whitespace.
func normalize(s string) string {
	// Casers and transformers are stateful, so both are built per call.
	lower := cases.Lower(language.Und).String(s)
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		lower,
	)
	if err != nil {
		folded = lower
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(folded, " "))
}
