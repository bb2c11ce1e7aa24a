package sources

import (
	"strings"

	"github.com/mudler/xlog"
)

// Config carries fetch options shared by all sources.
type Config struct {
	// GitPrivateKey is a base64-encoded SSH private key used to clone
	// private repositories.
	GitPrivateKey string
}

// SourceRouter picks the fetcher for a URL and returns its content as
// plain text. Git URLs clone the repository, sitemaps expand to every
// page they list, anything else is fetched as a single web page.
func SourceRouter(url string, config *Config) (string, error) {
	if config == nil {
		config = &Config{}
	}

	xlog.Info("Downloading content from", "url", url)
	switch {
	case strings.HasSuffix(url, ".git"):
		return GetGitRepositoryContent(url, config.GitPrivateKey)
	case strings.HasSuffix(url, "sitemap.xml"):
		content, err := GetWebSitemapContent(url)
		if err != nil {
			return "", err
		}
		xlog.Info("Downloaded all content from sitemap", "url", url, "pages", len(content))
		return strings.Join(content, "\n"), nil
	}

	return GetWebPage(url)
}
