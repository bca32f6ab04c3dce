package media

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const cloudinaryAPIBase = "https://api.cloudinary.com"

// Cloudinary stores media through the signed upload API. Images and videos
// share one endpoint with resource_type=auto.
type Cloudinary struct {
	apiKey     string
	apiSecret  string
	cloudName  string
	apiBase    string
	httpClient *http.Client
	now        func() time.Time
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Result    string `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewCloudinary(rawURL string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		cloudName: cloudName,
		apiBase:   cloudinaryAPIBase,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		now: time.Now,
	}, nil
}

// Save uploads data under a public id derived from key without its
// extension; Cloudinary appends the format itself.
func (c *Cloudinary) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty media payload")
	}

	publicID := strings.TrimSuffix(key, path.Ext(key))
	source := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	resp, err := c.call(ctx, "auto/upload", publicID, map[string]string{"file": source})
	if err != nil {
		return "", err
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response missing secure_url")
	}

	return resp.SecureURL, nil
}

func (c *Cloudinary) Delete(ctx context.Context, publicURL string) error {
	resourceType, publicID, ok := c.parseDeliveryURL(publicURL)
	if !ok {
		return nil
	}

	resp, err := c.call(ctx, resourceType+"/destroy", publicID, nil)
	if err != nil {
		return err
	}
	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy returned %q", resp.Result)
	}
	return nil
}

// parseDeliveryURL splits https://res.cloudinary.com/<cloud>/<type>/upload/[v123/]<public_id>.<ext>.
func (c *Cloudinary) parseDeliveryURL(raw string) (string, string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(parsed.Host, "cloudinary.com") {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != c.cloudName || parts[2] != "upload" {
		return "", "", false
	}

	rest := parts[3:]
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") {
		if _, err := strconv.ParseInt(rest[0][1:], 10, 64); err == nil {
			rest = rest[1:]
		}
	}

	publicID := strings.Join(rest, "/")
	publicID = strings.TrimSuffix(publicID, path.Ext(publicID))
	if publicID == "" {
		return "", "", false
	}
	return parts[1], publicID, true
}

func (c *Cloudinary) call(ctx context.Context, endpoint, publicID string, extra map[string]string) (cloudinaryResponse, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	fields := map[string]string{
		"public_id": publicID,
		"timestamp": timestamp,
	}
	signature := c.sign(fields)
	fields["api_key"] = c.apiKey
	fields["signature"] = signature
	for k, v := range extra {
		fields[k] = v
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		for name, value := range fields {
			if err := writer.WriteField(name, value); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", name, err))
				return
			}
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	target := fmt.Sprintf("%s/v1_1/%s/%s", c.apiBase, c.cloudName, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		_ = pr.Close()
		return cloudinaryResponse{}, fmt.Errorf("build cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("cloudinary request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("read cloudinary response: %w", err)
	}

	var parsedResp cloudinaryResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("decode cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsedResp.Error != nil && parsedResp.Error.Message != "" {
			return cloudinaryResponse{}, fmt.Errorf("cloudinary %s failed: %s", endpoint, parsedResp.Error.Message)
		}
		return cloudinaryResponse{}, fmt.Errorf("cloudinary %s failed with status %d", endpoint, resp.StatusCode)
	}

	return parsedResp, nil
}

// sign implements Cloudinary's request signature: the signed parameters
// sorted by name, joined as a query string, suffixed with the API secret.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}
