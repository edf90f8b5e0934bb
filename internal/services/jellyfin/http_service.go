package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"curator/internal/config"
)

const requestTimeout = 15 * time.Second

// Collection types reported by /Library/VirtualFolders.
const (
	CollectionMovies  = "movies"
	CollectionTVShows = "tvshows"
)

// Service triggers media-server library refreshes after link changes.
type Service interface {
	Refresh(ctx context.Context, films, shows bool) error
}

// HTTPDoer describes the HTTP client used by the Jellyfin service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// VirtualFolder is one configured Jellyfin library.
type VirtualFolder struct {
	Name           string   `json:"Name"`
	ItemID         string   `json:"ItemId"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

type noopService struct{}

func (noopService) Refresh(context.Context, bool, bool) error { return nil }

type httpService struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewConfiguredService returns a refresher for cfg. When Jellyfin is
// disabled or lacks credentials the returned service does nothing.
func NewConfiguredService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Jellyfin.Enabled {
		return noopService{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Jellyfin.URL), "/")
	apiKey := strings.TrimSpace(cfg.Jellyfin.APIKey)
	if baseURL == "" || apiKey == "" {
		return noopService{}
	}
	return NewHTTPService(baseURL, apiKey, &http.Client{Timeout: requestTimeout})
}

// NewHTTPService constructs an HTTP-backed Jellyfin service.
func NewHTTPService(baseURL, apiKey string, client HTTPDoer) Service {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &httpService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

// Refresh asks Jellyfin to rescan the film and/or show libraries. Libraries
// of other collection types are left alone.
func (s *httpService) Refresh(ctx context.Context, films, shows bool) error {
	if s == nil || s.client == nil || s.baseURL == "" || s.apiKey == "" || (!films && !shows) {
		return nil
	}
	folders, err := s.VirtualFolders(ctx)
	if err != nil {
		return err
	}
	for _, folder := range folders {
		switch strings.ToLower(folder.CollectionType) {
		case CollectionMovies:
			if !films {
				continue
			}
		case CollectionTVShows:
			if !shows {
				continue
			}
		default:
			continue
		}
		if folder.ItemID == "" {
			continue
		}
		if err := s.refreshItem(ctx, folder.ItemID); err != nil {
			return fmt.Errorf("refresh %s: %w", folder.Name, err)
		}
	}
	return nil
}

// VirtualFolders lists the configured libraries.
func (s *httpService) VirtualFolders(ctx context.Context) ([]VirtualFolder, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/Library/VirtualFolders", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list jellyfin libraries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError("list libraries", resp)
	}
	var folders []VirtualFolder
	if err := json.NewDecoder(resp.Body).Decode(&folders); err != nil {
		return nil, fmt.Errorf("decode jellyfin libraries: %w", err)
	}
	return folders, nil
}

func (s *httpService) refreshItem(ctx context.Context, itemID string) error {
	query := url.Values{}
	query.Set("Recursive", "true")
	query.Set("MetadataRefreshMode", "Default")
	query.Set("ImageRefreshMode", "Default")
	query.Set("ReplaceAllMetadata", "false")
	query.Set("ReplaceAllImages", "false")
	req, err := s.newRequest(ctx, http.MethodPost, "/Items/"+url.PathEscape(itemID)+"/Refresh", query)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh jellyfin library: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError("refresh library", resp)
	}
	return nil
}

func (s *httpService) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build jellyfin request: %w", err)
	}
	req.Header.Set("X-Emby-Token", s.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("jellyfin %s returned %d", op, resp.StatusCode)
	}
	return fmt.Errorf("jellyfin %s returned %d: %s", op, resp.StatusCode, msg)
}
