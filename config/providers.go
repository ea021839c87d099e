package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bookfetch/book"
)

// Providers is the retrieval policy: which search endpoints to try, in
// which order, which mirror templates a content id interpolates into,
// and which gateways translate peer-network links. It ships with
// compiled-in defaults and can be overridden by a YAML file, since
// mirrors come and go faster than releases.
type Providers struct {
	Providers []book.Provider `yaml:"providers"`
	Mirrors   []string        `yaml:"mirrors"`
	Gateways  []string        `yaml:"gateways"`
}

// DefaultProviders mirrors the endpoints ordered by typical
// reliability.
func DefaultProviders() Providers {
	return Providers{
		Providers: []book.Provider{
			{ID: "libgen", SearchURL: "https://libgen.li/search.php?req=%s&lg_topic=libgen&open=0&view=simple&res=25&phrase=1&column=def"},
			{ID: "libgen", SearchURL: "https://libgen.is/search.php?req=%s&lg_topic=libgen&open=0&view=simple&res=25&phrase=1&column=def"},
			{ID: "libgen", SearchURL: "https://libgen.rs/search.php?req=%s&lg_topic=libgen&open=0&view=simple&res=25&phrase=1&column=def"},
			{ID: "annas", SearchURL: "https://annas-archive.org/search?q=%s"},
			{ID: "annas", SearchURL: "https://annas-archive.se/search?q=%s"},
		},
		Mirrors: []string{
			"http://library.lol/main/%s",
			"https://libgen.li/ads.php?md5=%s",
			"https://libgen.rs/book/index.php?md5=%s",
			"https://libgen.st/book/index.php?md5=%s",
			"https://annas-archive.org/md5/%s",
		},
		Gateways: []string{
			"https://ipfs.io/ipfs/%s",
			"https://cloudflare-ipfs.com/ipfs/%s",
			"https://gateway.pinata.cloud/ipfs/%s",
		},
	}
}

// LoadProviders returns the defaults when path is empty, otherwise the
// YAML document at path.
func LoadProviders(path string) (Providers, error) {
	if path == "" {
		return DefaultProviders(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Providers{}, fmt.Errorf("failed to read providers file: %w", err)
	}
	var p Providers
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Providers{}, fmt.Errorf("failed to parse providers file: %w", err)
	}
	if len(p.Providers) == 0 {
		return Providers{}, fmt.Errorf("providers file %s lists no providers", path)
	}
	return p, nil
}
