package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greenchain/ccrs/internal/config"
)

// Pinner IPFS钉存服务客户端（REST API）
type Pinner struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewPinner 创建钉存客户端；未启用时返回nil，调用方需判空
func NewPinner(cfg config.IpfsConfig) *Pinner {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	return &Pinner{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Pin 钉存文件内容，返回CID
func (p *Pinner) Pin(ctx context.Context, fileName string, data []byte) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"name":    fileName,
		"content": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/v1/pins", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pin service returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Cid string `json:"cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	if result.Cid == "" {
		return "", fmt.Errorf("pin service returned empty cid")
	}

	return result.Cid, nil
}
