package sources

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/mudler/xlog"
)

// Extensions worth ingesting from a repository. Anything else is
// treated as binary or generated.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".py": true, ".js": true,
	".ts": true, ".html": true, ".css": true, ".json": true, ".yaml": true,
	".yml": true, ".xml": true, ".sh": true, ".bash": true, ".c": true,
	".cpp": true, ".h": true, ".hpp": true, ".java": true, ".rb": true,
	".php": true, ".rs": true, ".swift": true, ".kt": true, ".scala": true,
	".sql": true, ".proto": true, ".toml": true, ".ini": true, ".conf": true,
	".log": true, ".csv": true, ".tsv": true, ".rst": true, ".tex": true,
	".adoc": true, ".asciidoc": true, ".wiki": true,
}

// GetGitRepositoryContent shallow-clones a repository and concatenates
// its text files, each preceded by a "--- File: path ---" marker so a
// chunk keeps a pointer back to its origin. privateKey is a
// base64-encoded SSH key for private repositories; empty means an
// anonymous clone.
func GetGitRepositoryContent(url string, privateKey string) (string, error) {
	tempDir, err := os.MkdirTemp("", "esgrag-git-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tempDir)

	opts := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.HEAD,
	}
	if privateKey != "" {
		auth, err := sshAuth(privateKey)
		if err != nil {
			return "", err
		}
		opts.Auth = auth
	}

	xlog.Debug("Cloning repository", "url", url)
	if _, err := git.PlainClone(tempDir, false, opts); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", url, err)
	}

	var content strings.Builder
	err = filepath.WalkDir(tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(tempDir, path)
		if err != nil {
			rel = path
		}
		fmt.Fprintf(&content, "\n--- File: %s ---\n", rel)
		content.Write(data)
		content.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}

	return content.String(), nil
}

// sshAuth builds SSH credentials from a base64-encoded private key.
func sshAuth(privateKey string) (*ssh.PublicKeys, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return ssh.NewPublicKeys("git", keyBytes, "")
}
