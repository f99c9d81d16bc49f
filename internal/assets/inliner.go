// Package assets resolves backend-local references to images and tables
// inside markdown/HTML output. Image bytes are pushed to object storage when
// configured, inlined as data URIs otherwise; references with no bytes behind
// them become neutral placeholders. Everything here is best-effort: a single
// asset's failure never fails the parse.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"docbench/internal/domain"
	"docbench/internal/port"
)

var (
	mdImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	mdLinkPattern  = regexp.MustCompile(`!?\[([^\]]*)\]\(([^)\s]+)\)`)
	htmlSrcPattern = regexp.MustCompile(`src="([^"]+)"`)
)

// Inliner rewrites asset references in parse outputs. A nil storage is a
// normal state: every resolvable asset then becomes a data URI.
type Inliner struct {
	storage port.ObjectStorage
	bucket  string
}

// New creates an Inliner. storage may be nil when no object store is
// configured.
func New(storage port.ObjectStorage, bucket string) *Inliner {
	return &Inliner{storage: storage, bucket: bucket}
}

// Inline resolves every asset and table reference found in the outputs'
// markdown and HTML, in place.
func (in *Inliner) Inline(ctx context.Context, outputs *domain.ParseOutputs, assets []port.Asset, tables []port.TableFragment) {
	if outputs == nil {
		return
	}

	byRef := indexAssets(assets)
	tableByRef := indexTables(tables)

	outputs.Markdown = in.rewriteTables(outputs.Markdown, tables, tableByRef)
	outputs.Markdown = in.rewriteMarkdownImages(ctx, outputs.Markdown, byRef)
	if outputs.HTML != "" {
		outputs.HTML = in.rewriteHTMLSources(ctx, outputs.HTML, byRef)
	}
}

// indexAssets keys assets by their id and by the id without extension, since
// backends are inconsistent about which form appears in the text.
func indexAssets(assets []port.Asset) map[string]*port.Asset {
	idx := make(map[string]*port.Asset, len(assets)*2)
	for i := range assets {
		a := &assets[i]
		idx[a.ID] = a
		if trimmed := strings.TrimSuffix(a.ID, path.Ext(a.ID)); trimmed != a.ID {
			idx[trimmed] = a
		}
	}
	return idx
}

// indexTables keys table fragments by id, id+extension, and positional index.
func indexTables(tables []port.TableFragment) map[string]string {
	idx := make(map[string]string, len(tables)*3)
	for _, t := range tables {
		idx[t.ID] = t.HTML
		idx[t.ID+".html"] = t.HTML
		idx[fmt.Sprintf("table_%d", t.Index)] = t.HTML
	}
	return idx
}

// rewriteTables substitutes backend-provided HTML fragments at table
// reference sites. Both link-style references and bare positional markers are
// tried, since backends differ in which pattern they emit.
func (in *Inliner) rewriteTables(markdown string, tables []port.TableFragment, byRef map[string]string) string {
	if len(tables) == 0 || markdown == "" {
		return markdown
	}

	markdown = mdLinkPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		groups := mdLinkPattern.FindStringSubmatch(match)
		target := groups[2]
		if html, ok := byRef[path.Base(target)]; ok {
			return html
		}
		return match
	})

	for _, t := range tables {
		marker := fmt.Sprintf("[TABLE_%d]", t.Index)
		markdown = strings.ReplaceAll(markdown, marker, t.HTML)
	}
	return markdown
}

func (in *Inliner) rewriteMarkdownImages(ctx context.Context, markdown string, byRef map[string]*port.Asset) string {
	if markdown == "" {
		return markdown
	}
	return mdImagePattern.ReplaceAllStringFunc(markdown, func(match string) string {
		groups := mdImagePattern.FindStringSubmatch(match)
		alt, target := groups[1], groups[2]
		if externalRef(target) {
			return match
		}
		asset, ok := byRef[path.Base(target)]
		if !ok || len(asset.Bytes) == 0 {
			// No bytes to resolve against: neutral placeholder instead of a
			// dangling link.
			if alt == "" {
				alt = path.Base(target)
			}
			return fmt.Sprintf("[Image: %s]", alt)
		}
		return fmt.Sprintf("![%s](%s)", alt, in.resolve(ctx, asset))
	})
}

func (in *Inliner) rewriteHTMLSources(ctx context.Context, html string, byRef map[string]*port.Asset) string {
	return htmlSrcPattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := htmlSrcPattern.FindStringSubmatch(match)
		target := groups[1]
		if externalRef(target) {
			return match
		}
		asset, ok := byRef[path.Base(target)]
		if !ok || len(asset.Bytes) == 0 {
			return fmt.Sprintf(`src="" data-unresolved="%s"`, path.Base(target))
		}
		return fmt.Sprintf(`src="%s"`, in.resolve(ctx, asset))
	})
}

// resolve turns asset bytes into a usable URL: object storage when
// configured, data URI otherwise. Upload failure degrades to the data URI so
// valid asset data is never dropped.
func (in *Inliner) resolve(ctx context.Context, asset *port.Asset) string {
	contentType := asset.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	if in.storage != nil && in.bucket != "" {
		key := fmt.Sprintf("assets/%s-%s", uuid.New().String(), sanitizeKey(asset.ID))
		out, err := in.storage.Upload(ctx, port.UploadInput{
			Bucket:      in.bucket,
			Key:         key,
			Body:        bytes.NewReader(asset.Bytes),
			ContentType: contentType,
			Size:        int64(len(asset.Bytes)),
		})
		if err == nil && out.Location != "" {
			return out.Location
		}
		log.Printf("assets: upload of %s failed, falling back to data URI: %v", asset.ID, err)
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(asset.Bytes))
}

func externalRef(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "data:")
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeKey(s string) string {
	return unsafeKeyChars.ReplaceAllString(s, "_")
}
