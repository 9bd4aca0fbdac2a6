// Package httpclient provides small helpers for JSON REST resources.
package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GetResource fetches baseURL+endpoint and decodes the JSON body into T.
// Responses with a status outside allowedStatuses are an error.
func GetResource[T any](client *http.Client, baseURL, endpoint string, allowedStatuses []int) (T, error) {
	var zero T

	resp, err := client.Get(baseURL + endpoint)
	if err != nil {
		return zero, fmt.Errorf("couldn't get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	allowed := false
	for _, status := range allowedStatuses {
		if resp.StatusCode == status {
			allowed = true
			break
		}
	}
	if !allowed {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return zero, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, body)
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return zero, fmt.Errorf("couldn't decode %s response: %w", endpoint, err)
	}
	return result, nil
}
