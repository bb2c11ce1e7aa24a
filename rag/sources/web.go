package sources

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// GetWebPage fetches a page and converts it to plain text. Non-2xx
// responses are errors, error pages must not end up in a collection.
func GetWebPage(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetWebSitemapContent fetches every page a sitemap lists. Pages that
// fail to fetch are skipped, one dead link must not lose the rest of
// the site.
func GetWebSitemapContent(url string) (res []string, err error) {
	err = sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		xlog.Info("Sitemap page", "url", e.GetLocation())
		content, err := GetWebPage(e.GetLocation())
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", e.GetLocation(), "error", err)
			return nil
		}
		res = append(res, content)
		return nil
	})
	return
}
