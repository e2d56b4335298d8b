// Purges a recorded call and everything hanging off it (messages, analysis,
// follow-up scripts) by Twilio call SID. Meant for scrubbing test calls from
// shared environments.
//
// Usage:
//
//	API_URL=... go run scripts/purge/main.go <call-sid>
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: go run scripts/purge/main.go <call-sid>")
		os.Exit(1)
	}
	callSID := os.Args[1]

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	conv, err := lookupConversation(apiURL, callSID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
		os.Exit(1)
	}

	pretty, _ := json.MarshalIndent(conv, "", "  ")
	fmt.Printf("Purging conversation for %s:\n%s\n", callSID, pretty)

	id, ok := conv["id"].(float64)
	if !ok {
		fmt.Fprintln(os.Stderr, "response missing conversation id")
		os.Exit(1)
	}

	if err := deleteConversation(apiURL, int64(id)); err != nil {
		fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Purged conversation %d\n", int64(id))
}

func lookupConversation(apiURL, callSID string) (map[string]interface{}, error) {
	resp, err := http.Get(fmt.Sprintf("%s/conversations/by-sid/%s", apiURL, callSID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var conv map[string]interface{}
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return conv, nil
}

func deleteConversation(apiURL string, id int64) error {
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/conversations/%d", apiURL, id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}
