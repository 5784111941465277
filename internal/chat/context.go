package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/lumosgraph/backend/internal/ai"
	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/filestore"
	"github.com/lumosgraph/backend/internal/images"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/stream"
)

const baseSystemPrompt = `You are a helpful assistant. Respond to the user's message politely and helpfully.
Format your responses using proper markdown: headings for main sections, numbered lists for sequential
information, bullet points for features, bold for key terms. Keep paragraphs concise.`

const documentContextPrompt = `

---
DOCUMENT CONTEXT:
The following content has been extracted from documents uploaded by the user. Use this information to
answer their questions accurately. Reference specific pages when relevant.

%s
---`

// maxImagesInContext caps how many page images are attached to one turn.
const maxImagesInContext = 10

// Composer assembles the provider-visible working state: resolved base
// history, the new input, and whatever document context the thread has.
type Composer struct {
	docs   docs.Provider
	images images.Cache
	files  filestore.Store
	log    *logger.Logger
}

func NewComposer(docsProvider docs.Provider, imageCache images.Cache, files filestore.Store, log *logger.Logger) *Composer {
	if imageCache == nil {
		imageCache = images.NopCache{}
	}
	return &Composer{
		docs:   docsProvider,
		images: imageCache,
		files:  files,
		log:    log.With("component", "composer"),
	}
}

// Chunks loads the thread's document context. An empty result is the common
// case and not an error.
func (c *Composer) Chunks(ctx context.Context, threadID string) ([]docs.Chunk, error) {
	if c.docs == nil {
		return nil, nil
	}
	return c.docs.ChunksForThread(ctx, threadID)
}

// providerRole maps stored roles to the chat-completions vocabulary.
func providerRole(role string) string {
	switch role {
	case RoleHuman:
		return "user"
	case RoleAI:
		return "assistant"
	}
	return role
}

// BuildMessages merges base state, the new user input and document context
// into the provider message list. Page images ride on the system turn when
// any chunk has them.
func (c *Composer) BuildMessages(
	ctx context.Context,
	threadID string,
	chunks []docs.Chunk,
	base []checkpoint.StateMessage,
	userMessage string,
	emit func(stream.Progress),
) ([]ai.Message, error) {
	system := ai.Message{Role: "system", Content: baseSystemPrompt}

	if len(chunks) > 0 {
		emit(stream.Progress{"Progress": "Building document context ..."})
		if formatted := buildDocumentContext(chunks); formatted != "" {
			system.Content += fmt.Sprintf(documentContextPrompt, formatted)
		}

		if hasImages(chunks) {
			imgs, err := c.pageImages(ctx, threadID, chunks, emit)
			if err != nil {
				// Degrade to text-only context rather than failing the turn.
				c.log.Warn("image fetch failed, continuing text-only", "thread_id", threadID, "err", err)
			} else {
				system.Images = flattenImages(chunks, imgs)
			}
		}
	}

	out := make([]ai.Message, 0, len(base)+2)
	out = append(out, system)
	for _, m := range base {
		out = append(out, ai.Message{Role: providerRole(m.Role), Content: m.Content})
	}
	out = append(out, ai.Message{Role: "user", Content: userMessage})
	return out, nil
}

// pageImages returns the thread's page images, from cache when warm.
func (c *Composer) pageImages(ctx context.Context, threadID string, chunks []docs.Chunk, emit func(stream.Progress)) (images.PageImages, error) {
	cached, err := c.images.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		emit(stream.Progress{"Progress": "Using cached images ..."})
		return cached, nil
	}
	if c.files == nil {
		return nil, nil
	}

	emit(stream.Progress{"Progress": "Fetching images ..."})
	fetched := images.PageImages{}
	total := 0
	for _, ch := range chunks {
		keys := ch.Images()
		if len(keys) == 0 {
			continue
		}
		pageKey := fmt.Sprintf("%s:%d", ch.Filename, ch.PageNum)
		if _, seen := fetched[pageKey]; seen {
			continue
		}
		var urls []string
		for _, key := range keys {
			if total >= maxImagesInContext {
				break
			}
			url, err := c.fetchDataURL(ctx, key)
			if err != nil {
				return nil, err
			}
			urls = append(urls, url)
			total++
		}
		if len(urls) > 0 {
			fetched[pageKey] = urls
		}
		if total >= maxImagesInContext {
			break
		}
	}

	if len(fetched) > 0 {
		if err := c.images.Set(ctx, threadID, fetched); err != nil {
			c.log.Warn("image cache write failed", "thread_id", threadID, "err", err)
		}
		emit(stream.Progress{"Progress": "Images fetched and cached ..."})
	}
	return fetched, nil
}

func (c *Composer) fetchDataURL(ctx context.Context, key string) (string, error) {
	rc, err := c.files.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	ct := filestore.ContentType(key)
	return fmt.Sprintf("data:%s;base64,%s", ct, base64.StdEncoding.EncodeToString(raw)), nil
}

// flattenImages orders page images to match the chunk ordering of the
// document context.
func flattenImages(chunks []docs.Chunk, imgs images.PageImages) []string {
	if len(imgs) == 0 {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, ch := range chunks {
		pageKey := fmt.Sprintf("%s:%d", ch.Filename, ch.PageNum)
		if seen[pageKey] {
			continue
		}
		seen[pageKey] = true
		out = append(out, imgs[pageKey]...)
	}
	return out
}

func hasImages(chunks []docs.Chunk) bool {
	for _, ch := range chunks {
		if len(ch.Images()) > 0 {
			return true
		}
	}
	return false
}

// buildDocumentContext formats chunks grouped by file and page.
func buildDocumentContext(chunks []docs.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var parts []string
	currentFile := ""
	for _, ch := range chunks {
		if ch.Filename != currentFile {
			parts = append(parts, fmt.Sprintf("\n[FILE: %s]", ch.Filename))
			currentFile = ch.Filename
		}
		header := fmt.Sprintf("[Page %d]", ch.PageNum+1)
		if n := len(ch.Images()); n > 0 {
			header += fmt.Sprintf(" (contains %d image(s))", n)
		}
		parts = append(parts, header+"\n"+ch.Content)
	}
	return strings.Join(parts, "\n\n")
}

// buildGateSummary condenses document context for classification: first
// chunk per page, content clipped, to keep token usage low.
func buildGateSummary(chunks []docs.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	const clip = 300
	seenPages := map[string]bool{}
	var parts []string
	currentFile := ""
	for _, ch := range chunks {
		pageKey := fmt.Sprintf("%s:%d", ch.Filename, ch.PageNum)
		if seenPages[pageKey] {
			continue
		}
		seenPages[pageKey] = true
		if ch.Filename != currentFile {
			parts = append(parts, fmt.Sprintf("\n[FILE: %s]", ch.Filename))
			currentFile = ch.Filename
		}
		parts = append(parts, fmt.Sprintf("[Page %d] %s", ch.PageNum+1, clipRunes(ch.Content, clip)))
	}
	return strings.Join(parts, "\n")
}
