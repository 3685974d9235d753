package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func hmacSHA256(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// verifyHexSignature checks "sha256=<hex>" style headers.
func verifyHexSignature(secret, header string, body []byte) error {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, hmacSHA256(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func verifyBase64Signature(secret, header string, body []byte) error {
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil || !hmac.Equal(got, hmacSHA256(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, platform, url, bearer string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Platform: platform, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return &DeliveryError{Platform: platform, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &DeliveryError{Platform: platform, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DeliveryError{Platform: platform, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}
	return nil
}
