// Package bootstrap fetches the agent's NATS credentials from PocketBase on
// first start.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stone-age-io/factagent/internal/config"
	"go.uber.org/zap"
)

const httpTimeout = 15 * time.Second

// Request describes one credentials lookup
type Request struct {
	PocketBase config.PocketBaseConfig
	DeviceID   string // install UUID
	CredsPath  string
	Client     *http.Client // optional
}

// FetchCredentials writes the .creds file at req.CredsPath unless it already
// exists. The password is read from the environment variable named by
// PocketBase.PasswordEnv.
func FetchCredentials(ctx context.Context, req Request, logger *zap.Logger) error {
	if _, err := os.Stat(req.CredsPath); err == nil {
		logger.Info("Credentials file exists, skipping bootstrap", zap.String("path", req.CredsPath))
		return nil
	}

	pb := req.PocketBase
	logger.Info("Credentials file not found, bootstrapping from PocketBase",
		zap.String("path", req.CredsPath),
		zap.String("pocketbase_url", pb.URL))

	password := os.Getenv(pb.PasswordEnv)
	if password == "" {
		return fmt.Errorf("bootstrap: environment variable %s is not set or empty", pb.PasswordEnv)
	}

	client := req.Client
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	base := strings.TrimRight(pb.URL, "/")

	token, err := authenticate(ctx, client, base, pb.AuthCollection, pb.Identity, password)
	if err != nil {
		return fmt.Errorf("bootstrap: authentication failed: %w", err)
	}

	creds, err := fetchCredsRecord(ctx, client, base, token, pb, req.DeviceID)
	if err != nil {
		return fmt.Errorf("bootstrap: failed to fetch credentials: %w", err)
	}

	if err := writeCredsFile(req.CredsPath, creds); err != nil {
		return fmt.Errorf("bootstrap: failed to write credentials file: %w", err)
	}
	logger.Info("Credentials file written", zap.String("path", req.CredsPath))
	return nil
}

// authenticate exchanges identity and password for a PocketBase token
func authenticate(ctx context.Context, client *http.Client, base, collection, identity, password string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/collections/%s/auth-with-password", base, url.PathEscape(collection))

	payload, err := json.Marshal(map[string]string{"identity": identity, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := doJSON(client, req, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("auth response contained no token")
	}
	return out.Token, nil
}

// fetchCredsRecord returns the creds field of the record matching deviceID
func fetchCredsRecord(ctx context.Context, client *http.Client, base, token string, pb config.PocketBaseConfig, deviceID string) (string, error) {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("%s='%s'", pb.DeviceIDField, deviceID))
	query.Set("perPage", "1")
	endpoint := fmt.Sprintf("%s/api/collections/%s/records?%s", base, url.PathEscape(pb.Collection), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token)

	var list struct {
		Items      []map[string]any `json:"items"`
		TotalItems int              `json:"totalItems"`
	}
	if err := doJSON(client, req, &list); err != nil {
		return "", err
	}
	if list.TotalItems == 0 || len(list.Items) == 0 {
		return "", fmt.Errorf("no record found for %s='%s' in collection '%s'", pb.DeviceIDField, deviceID, pb.Collection)
	}

	value, ok := list.Items[0][pb.CredsField]
	if !ok {
		return "", fmt.Errorf("record does not contain field '%s'", pb.CredsField)
	}
	creds, ok := value.(string)
	if !ok || creds == "" {
		return "", fmt.Errorf("field '%s' is empty or not a string", pb.CredsField)
	}
	return creds, nil
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// writeCredsFile writes owner-only, creating parent directories
func writeCredsFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
