package normalize

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultMerchantAliases collapses storefront subdomains onto one merchant.
var DefaultMerchantAliases = map[string]string{
	"smile.amazon.com": "amazon.com",
	"m.ebay.com":       "ebay.com",
	"m.walmart.com":    "walmart.com",
	"m.bestbuy.com":    "bestbuy.com",
}

// AliasTable maps a host, or any parent domain of it, to a canonical
// merchant domain.
type AliasTable map[string]string

// Resolve returns the canonical merchant for host. The most specific
// matching entry wins; unmatched hosts are returned unchanged.
func (t AliasTable) Resolve(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	for h := host; strings.Contains(h, "."); {
		if canon, ok := t[h]; ok {
			return canon
		}
		i := strings.IndexByte(h, '.')
		h = h[i+1:]
	}
	return host
}

// MerchantDomain derives the merchant identity from a canonical URL, or from
// the provider's merchant hint when the listing has no link.
func MerchantDomain(canonical, hint string, aliases AliasTable) string {
	if canonical != "" {
		if h := Host(canonical); h != "" {
			return aliases.Resolve(h)
		}
	}
	hint = strings.ToLower(strings.Join(strings.Fields(hint), " "))
	if hint == "" {
		return ""
	}
	if strings.Contains(hint, "://") || strings.HasPrefix(hint, "www.") {
		if c := CanonicalURL(hint, URLRules{}); c != "" {
			return aliases.Resolve(Host(c))
		}
	}
	return aliases.Resolve(hint)
}

// LoadAliases reads an alias table from a YAML file of the form
//
//	aliases:
//	  smile.amazon.com: amazon.com
func LoadAliases(path string) (AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read alias file %s", path)
	}

	var wrapper struct {
		Aliases map[string]string `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "normalize: parse alias file")
	}

	out := make(AliasTable, len(wrapper.Aliases))
	for k, v := range wrapper.Aliases {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out, nil
}

// MergeAliases layers the given tables left to right; later entries win.
func MergeAliases(tables ...map[string]string) AliasTable {
	out := AliasTable{}
	for _, t := range tables {
		for k, v := range t {
			out[strings.ToLower(k)] = strings.ToLower(v)
		}
	}
	return out
}
