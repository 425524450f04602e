// Package note turns raw vault responses into FileInfo snapshots.
package note

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/textutil"
)

// NoteJSONContentType is the media type the vault uses for note+metadata replies.
const NoteJSONContentType = "application/vnd.olrapi.note+json"

const frontmatterFence = "---"

// noteDTO mirrors the vault's note+json body.
type noteDTO struct {
	Path        string         `json:"path"`
	Content     string         `json:"content"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter"`
	Stat        struct {
		Ctime int64 `json:"ctime"`
		Mtime int64 `json:"mtime"`
		Size  int64 `json:"size"`
	} `json:"stat"`
}

// Decode builds a FileInfo from a Get response. JSON note bodies carry stat metadata;
// anything else is treated as raw Markdown.
func Decode(notePath string, resp domain.Response) (domain.FileInfo, error) {
	if isNoteJSON(resp.ContentType, resp.Body) {
		var dto noteDTO
		if err := json.Unmarshal(resp.Body, &dto); err != nil {
			return domain.FileInfo{}, fmt.Errorf("decode note %q: %w", notePath, err)
		}
		if dto.Path == "" {
			dto.Path = notePath
		}
		body, fm := SplitFrontmatter(dto.Content)
		tags := mergeTags(dto.Tags, fm.Tags)
		size := dto.Stat.Size
		if size == 0 {
			size = int64(len(dto.Content))
		}
		return domain.FileInfo{
			Name:     path.Base(dto.Path),
			Path:     dto.Path,
			Content:  textutil.StripHTML(body),
			Modified: fromMillis(dto.Stat.Mtime),
			Size:     size,
			Tags:     tags,
		}, nil
	}

	raw := string(resp.Body)
	body, fm := SplitFrontmatter(raw)
	return domain.FileInfo{
		Name:    path.Base(notePath),
		Path:    notePath,
		Content: textutil.StripHTML(body),
		Size:    int64(len(resp.Body)),
		Tags:    mergeTags(nil, fm.Tags),
	}, nil
}

// Frontmatter holds the YAML header fields the pipeline cares about.
type Frontmatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"-"`
}

// rawFrontmatter accepts tags as either a list or a single string.
type rawFrontmatter struct {
	Title string    `yaml:"title"`
	Tags  yaml.Node `yaml:"tags"`
}

// SplitFrontmatter separates a leading "---" YAML block from the Markdown body.
// Malformed YAML leaves the content untouched.
func SplitFrontmatter(content string) (string, Frontmatter) {
	trimmed := strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(trimmed, frontmatterFence+"\n") && !strings.HasPrefix(trimmed, frontmatterFence+"\r\n") {
		return content, Frontmatter{}
	}

	rest := trimmed[strings.Index(trimmed, "\n")+1:]
	end := strings.Index(rest, "\n"+frontmatterFence)
	if end < 0 {
		return content, Frontmatter{}
	}
	header := rest[:end]
	body := strings.TrimLeft(rest[end+len(frontmatterFence)+1:], "\r\n")

	var raw rawFrontmatter
	if err := yaml.Unmarshal([]byte(header), &raw); err != nil {
		return content, Frontmatter{}
	}

	fm := Frontmatter{Title: raw.Title}
	switch raw.Tags.Kind {
	case yaml.SequenceNode:
		var tags []string
		if err := raw.Tags.Decode(&tags); err == nil {
			fm.Tags = tags
		}
	case yaml.ScalarNode:
		fm.Tags = strings.FieldsFunc(raw.Tags.Value, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return body, fm
}

func isNoteJSON(contentType string, body []byte) bool {
	if strings.HasPrefix(contentType, NoteJSONContentType) {
		return true
	}
	if !strings.HasPrefix(contentType, "application/json") {
		return false
	}
	s := strings.TrimSpace(string(body))
	return strings.HasPrefix(s, "{")
}

func mergeTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
