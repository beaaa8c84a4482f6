// Package linkpreview は名刺のウェブサイトURLのリンクプレビュー取得を提供する。
//
// ユーザー入力のURLに対する外部リクエストとなるため、
// 取得は必ずSSRF防止付きクライアントを経由する。
package linkpreview

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matiquelmec/tarjetas-server/internal/model"
	"golang.org/x/net/html"
)

// Preview はウェブサイトのリンクプレビューを表す。
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FaviconURL  string `json:"faviconUrl,omitempty"`
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Fetcher はリンクプレビューの取得機能を提供する。
type Fetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 2 * 1024 * 1024
	}
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Fetch は指定URLのプレビューを取得する。
// 1. SSRF検証を実行
// 2. SSRF防止付きクライアントでHTMLを取得
// 3. headタグからタイトル・説明・ファビコンを解析
func (f *Fetcher) Fetch(ctx context.Context, inputURL string) (*Preview, error) {
	if inputURL == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	if err := f.ssrfGuard.ValidateURL(inputURL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Tarjetas/1.0 Link Preview")
	req.Header.Set("Accept", "text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewInvalidURLError(inputURL)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		// HTML以外はタイトル等を持たないため、URLのみのプレビューを返す
		return &Preview{URL: inputURL}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	preview := parseHead(body, inputURL)
	preview.URL = inputURL
	return preview, nil
}

// parseHead はHTMLのheadタグからタイトル・説明・ファビコンを解析する。
// 相対URLのファビコンはbaseURLを基準に絶対URLに解決される。
func parseHead(htmlBody []byte, baseURL string) *Preview {
	preview := &Preview{}

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return preview
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return preview

		case html.TextToken:
			if inTitle && preview.Title == "" {
				preview.Title = strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return preview
			}
			if !inHead {
				continue
			}

			switch tagName {
			case "title":
				inTitle = true

			case "meta":
				if !hasAttr {
					continue
				}
				name, content := metaAttrs(tokenizer)
				if name == "description" && preview.Description == "" {
					preview.Description = strings.TrimSpace(content)
				}

			case "link":
				if !hasAttr {
					continue
				}
				rel, href := linkAttrs(tokenizer)
				if href == "" || preview.FaviconURL != "" {
					continue
				}
				// rel="icon" または rel="shortcut icon" のリンクのみ対象
				if rel == "icon" || rel == "shortcut icon" {
					preview.FaviconURL = resolveURL(baseU, href)
				}
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				return preview
			}
		}
	}
}

// metaAttrs はmeta要素のname/content属性を解析する。
func metaAttrs(tokenizer *html.Tokenizer) (name, content string) {
	for {
		key, val, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "name":
			name = strings.ToLower(string(val))
		case "content":
			content = string(val)
		}
		if !more {
			return name, content
		}
	}
}

// linkAttrs はlink要素のrel/href属性を解析する。
func linkAttrs(tokenizer *html.Tokenizer) (rel, href string) {
	for {
		key, val, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "href":
			href = string(val)
		}
		if !more {
			return rel, href
		}
	}
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
