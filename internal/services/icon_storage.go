package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxIconBytes = 2 << 20

var allowedIconExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// IconStorageService stores item icons downloaded for the scan history
type IconStorageService struct {
	storageDir string
	httpClient *http.Client
}

// NewIconStorageService creates the service, defaulting to ./data/icons
func NewIconStorageService(storageDir string) *IconStorageService {
	if storageDir == "" {
		storageDir = "./data/icons"
	}

	if err := os.MkdirAll(storageDir, 0755); err != nil {
		log.Printf("Warning: could not create icon directory: %v", err)
	}

	return &IconStorageService{
		storageDir: storageDir,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SaveIcon writes icon data to disk under a random name and returns the filename
func (s *IconStorageService) SaveIcon(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty icon data")
	}
	ext = strings.ToLower(ext)
	if !allowedIconExtensions[ext] {
		ext = ".png"
	}

	filename := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(s.storageDir, filename), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save icon: %w", err)
	}
	return filename, nil
}

// DownloadIcon fetches an icon URL and stores it
func (s *IconStorageService) DownloadIcon(ctx context.Context, iconURL string) (string, error) {
	parsed, err := url.Parse(iconURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid icon url %q", iconURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", tradeUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download icon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("icon download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read icon: %w", err)
	}
	if len(data) > maxIconBytes {
		return "", fmt.Errorf("icon larger than %d bytes", maxIconBytes)
	}

	return s.SaveIcon(data, path.Ext(parsed.Path))
}

// GetIconPath returns the full path to an icon file
func (s *IconStorageService) GetIconPath(filename string) string {
	return filepath.Join(s.storageDir, filepath.Base(filename))
}

// DeleteIcon removes an icon file from disk
func (s *IconStorageService) DeleteIcon(filename string) error {
	if filename == "" {
		return nil
	}

	filePath := s.GetIconPath(filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete icon: %w", err)
	}
	return nil
}

// GetStorageDir returns the storage directory path
func (s *IconStorageService) GetStorageDir() string {
	return s.storageDir
}
