package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultOneSignalURL = "https://onesignal.com/api/v1"

type OneSignalNotifier struct {
	appID   string
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOneSignalNotifier(appID string, apiKey string, baseURL string) *OneSignalNotifier {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOneSignalURL
	}
	return &OneSignalNotifier{
		appID:   appID,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 8 * time.Second},
	}
}

type oneSignalRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data"`
}

func (n *OneSignalNotifier) Notify(ctx context.Context, deviceIDs []string, heading string, body string) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(oneSignalRequest{
		AppID:            n.appID,
		IncludePlayerIDs: deviceIDs,
		Headings:         map[string]string{"en": heading},
		Contents:         map[string]string{"en": body},
		Data:             map[string]string{"type": "receipt"},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/notifications", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("onesignal responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
