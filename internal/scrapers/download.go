package scrapers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/DataisKing1/title-search-app-sub000/internal/interfaces"
	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// DownloadDocument fetches one search hit to path, hashing the content on
// the way through. PDF files are validated before the download counts; a
// truncated or corrupt file is removed and reported as an error so the
// task retries instead of poisoning analysis.
func (a *GenericAdapter) DownloadDocument(ctx context.Context, session interfaces.BrowserSession, result models.SearchResult, path string) (*models.DownloadedDocument, error) {
	if result.DownloadURL == "" {
		// Some hits are index entries with no retrievable image.
		return nil, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	// Document URLs are usually gated behind the search session. Carry the
	// browser's cookies over so the direct fetch is not bounced to a login
	// page. Best effort: an anonymous fetch still works on open portals.
	for _, cookie := range a.sessionCookies(session) {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", result.InstrumentNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: server returned %d", result.InstrumentNumber, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create document directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create document file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), resp.Body)
	closeErr := file.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write document file: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close document file: %w", closeErr)
	}

	if isPDF(path, resp.Header.Get("Content-Type")) {
		if err := api.ValidateFile(path, nil); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("downloaded file failed validation: %w", err)
		}
	}

	a.logger.Debug().
		Str("instrument", result.InstrumentNumber).
		Str("path", path).
		Int64("size", size).
		Msg("Document downloaded")

	return &models.DownloadedDocument{
		FilePath:    path,
		FileSize:    size,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// sessionCookies reads the browser session's cookies for the site so the
// download request can present them.
func (a *GenericAdapter) sessionCookies(session interfaces.BrowserSession) []*http.Cookie {
	if session == nil || session.Context() == nil {
		return nil
	}

	var cdpCookies []*network.Cookie
	err := chromedp.Run(session.Context(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cdpCookies, err = network.GetCookies().WithURLs([]string{a.profile.BaseURL}).Do(ctx)
		return err
	}))
	if err != nil {
		a.logger.Debug().Err(err).Msg("Could not read session cookies, downloading anonymously")
		return nil
	}

	cookies := make([]*http.Cookie, 0, len(cdpCookies))
	for _, c := range cdpCookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}

// CheckHealth probes the recorder site without consuming a browser
// session.
func (a *GenericAdapter) CheckHealth(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, a.profile.BaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

func isPDF(path, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
