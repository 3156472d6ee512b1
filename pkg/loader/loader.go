// Package loader turns uploaded files and fetched URLs into documents.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/phuslu/log"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/logging"
	"golang.org/x/time/rate"
)

var (
	ErrUnsupported = errors.New("unsupported document type")
	ErrNoText      = errors.New("no text extracted")
)

type LoaderConfig struct {
	Timeout   time.Duration
	RateLimit float64 // fetches per second
	MaxBytes  int64
	Logger    *log.Logger
}

type Loader struct {
	config  LoaderConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewWithConfig(config LoaderConfig) *Loader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 50 << 20
	}

	return &Loader{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logging.OrDiscard(config.Logger),
	}
}

func New() *Loader {
	return NewWithConfig(LoaderConfig{})
}

// DocumentID derives a stable ID from a source name, so loading the same
// file twice yields the same document.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}

// Load reads a PDF, HTML or plain-text file.
func (l *Loader) Load(path string) ([]models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > l.config.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), l.config.MaxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return l.FromBytes(filepath.Base(path), data)
}

// FromBytes parses data according to the extension of name, falling back to
// content sniffing. PDFs yield one document per page with text.
func (l *Loader) FromBytes(name string, data []byte) ([]models.Document, error) {
	return l.parse(name, name, data, "")
}

func (l *Loader) parse(name, source string, data []byte, contentType string) ([]models.Document, error) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ext := strings.ToLower(filepath.Ext(name))

	var (
		docs []models.Document
		err  error
	)
	switch {
	case ext == ".pdf" || strings.Contains(contentType, "application/pdf") || bytes.HasPrefix(data, []byte("%PDF-")):
		docs, err = l.parsePDF(source, data)
	case ext == ".html" || ext == ".htm" || strings.Contains(contentType, "text/html"):
		docs, err = parseHTML(source, data)
	case ext == ".txt" || ext == ".md" || strings.HasPrefix(contentType, "text/"):
		docs, err = parseText(source, data)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, name, contentType)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrNoText, name)
	}

	l.logger.Debug().Str("source", source).Int("documents", len(docs)).Msg("document loaded")
	return docs, nil
}

func (l *Loader) parsePDF(source string, data []byte) (docs []models.Document, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("failed to read pdf %s: %v", source, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", source, err)
	}

	id := DocumentID(source)
	total := rdr.NumPage()
	for i := 1; i <= total; i++ {
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn().Err(err).Str("source", source).Int("page", i).Msg("skipping unreadable page")
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, models.Document{
			ID:      id,
			Source:  source,
			Content: text,
			Metadata: map[string]interface{}{
				"page":        i,
				"total_pages": total,
			},
		})
	}
	return docs, nil
}

func parseHTML(source string, data []byte) ([]models.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html %s: %w", source, err)
	}

	content := extractMainContent(doc)
	if content == "" {
		return nil, nil
	}
	return []models.Document{{
		ID:      DocumentID(source),
		Source:  source,
		Content: content,
		Metadata: map[string]interface{}{
			"title": strings.TrimSpace(doc.Find("title").Text()),
		},
	}}, nil
}

func parseText(source string, data []byte) ([]models.Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupported, source)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []models.Document{{
		ID:       DocumentID(source),
		Source:   source,
		Content:  string(data),
		Metadata: map[string]interface{}{},
	}}, nil
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return strings.Join(strings.Fields(content), " ")
}

// Fetch downloads a single URL and parses it like an uploaded file.
func (l *Loader) Fetch(ctx context.Context, url string) ([]models.Document, error) {
	// Apply rate limiting
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", url, err)
	}

	name := url
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return l.parse(name, url, data, resp.Header.Get("Content-Type"))
}

// Persist copies an upload into dir and returns the written path.
func Persist(dir, name string, data []byte) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}
