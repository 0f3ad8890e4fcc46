// Package proxy translates inbound gateway paths to backend paths and
// forwards requests to the configured upstream.
package proxy

import (
	"sort"
	"strings"

	"edgegate/internal/platform/config"
	dErrors "edgegate/pkg/domain-errors"
)

// Translator rewrites the portion of an inbound path after the API prefix
// using a priority-ordered rule table. Translation is deterministic: the
// same inbound path always yields the same backend path.
type Translator struct {
	apiPrefix string
	rules     []config.Route
}

// NewTranslator orders the rule table most specific prefix first, so a rule
// for "posts/tags" always wins over one for "posts". Rule prefixes and
// targets are matched against the slash-stripped remainder, so leading
// slashes from the configured form ("/uploads=media/uploads") are dropped.
func NewTranslator(apiPrefix string, routes []config.Route) *Translator {
	rules := make([]config.Route, len(routes))
	for i, r := range routes {
		rules[i] = config.Route{
			Prefix: strings.TrimPrefix(r.Prefix, "/"),
			Target: strings.TrimPrefix(r.Target, "/"),
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})
	return &Translator{apiPrefix: strings.TrimSuffix(apiPrefix, "/"), rules: rules}
}

// Translate strips the API prefix and applies the first matching rule.
// Unmatched remainders pass through unchanged. A path that does not carry
// the prefix at all is rejected before any network call is attempted.
func (t *Translator) Translate(inboundPath string) (string, error) {
	if inboundPath != t.apiPrefix && !strings.HasPrefix(inboundPath, t.apiPrefix+"/") {
		return "", dErrors.New(dErrors.CodeInvalidProxyPath, "request path is not served by this gateway")
	}
	remainder := strings.TrimPrefix(strings.TrimPrefix(inboundPath, t.apiPrefix), "/")

	for _, rule := range t.rules {
		if remainder == rule.Prefix || strings.HasPrefix(remainder, rule.Prefix+"/") {
			return rule.Target + strings.TrimPrefix(remainder, rule.Prefix), nil
		}
	}
	return remainder, nil
}
