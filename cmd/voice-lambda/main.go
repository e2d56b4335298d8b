// Lambda front door for the Twilio voice webhooks. API Gateway invokes
// this function, which relays /voice/twiml and /voice/status to the main
// API and hands the response back to Twilio. Keeping the webhook edge on
// Lambda lets the API scale and deploy independently of call signaling.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// voiceRoutes lists the only paths this proxy will relay, with their
// allowed methods. Twilio can be configured to fetch TwiML with GET or
// POST; status callbacks are always POST.
var voiceRoutes = map[string][]string{
	"/voice/twiml":  {http.MethodGet, http.MethodPost},
	"/voice/status": {http.MethodPost},
}

type config struct {
	upstreamBaseURL string
	upstreamTimeout time.Duration
}

func loadConfig() (config, error) {
	baseURL := strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL"))
	if baseURL == "" {
		return config{}, errors.New("UPSTREAM_BASE_URL is required")
	}

	timeout := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return config{
		upstreamBaseURL: strings.TrimRight(baseURL, "/"),
		upstreamTimeout: timeout,
	}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	client := &http.Client{Timeout: cfg.upstreamTimeout}
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, cfg, client, evt)
	})
}

func handle(ctx context.Context, cfg config, client *http.Client, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := requestPath(evt)

	if path == "/health" || path == "/_health" {
		return plainResponse(http.StatusOK, "ok"), nil
	}

	methods, known := voiceRoutes[path]
	if !known {
		return plainResponse(http.StatusNotFound, ""), nil
	}
	if !contains(methods, method) {
		return plainResponse(http.StatusMethodNotAllowed, ""), nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return plainResponse(http.StatusBadRequest, "invalid body"), nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.upstreamTimeout)
	defer cancel()

	req, err := upstreamRequest(reqCtx, cfg, evt, method, path, body)
	if err != nil {
		return plainResponse(http.StatusInternalServerError, ""), nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return plainResponse(http.StatusBadGateway, "upstream error"), nil
	}
	defer resp.Body.Close()

	return relayResponse(resp), nil
}

// upstreamRequest rebuilds the gateway event as a plain HTTP request to
// the API, carrying over the query string, the Twilio signature header
// and the original public host/proto. The TwiML handler derives the
// media stream and status callback URLs from X-Forwarded-Host, so the
// forwarded identity has to survive the hop.
func upstreamRequest(ctx context.Context, cfg config, evt events.APIGatewayV2HTTPRequest, method, path string, body []byte) (*http.Request, error) {
	target := cfg.upstreamBaseURL + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if ct := headerValue(evt.Headers, "content-type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if sig := strings.TrimSpace(headerValue(evt.Headers, "x-twilio-signature")); sig != "" {
		req.Header.Set("X-Twilio-Signature", sig)
	}

	host, proto := forwardOrigin(evt)
	if host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	req.Header.Set("X-Forwarded-Proto", proto)

	return req, nil
}

func forwardOrigin(evt events.APIGatewayV2HTTPRequest) (host, proto string) {
	host = strings.TrimSpace(evt.RequestContext.DomainName)
	if host == "" {
		host = strings.TrimSpace(headerValue(evt.Headers, "host"))
	}
	proto = strings.TrimSpace(headerValue(evt.Headers, "x-forwarded-proto"))
	if proto == "" {
		proto = "https"
	}
	return host, proto
}

func relayResponse(resp *http.Response) events.APIGatewayV2HTTPResponse {
	body, _ := io.ReadAll(resp.Body)
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Headers:    map[string]string{},
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out
}

func requestPath(evt events.APIGatewayV2HTTPRequest) string {
	if p := strings.TrimSpace(evt.RawPath); p != "" {
		return p
	}
	return strings.TrimSpace(evt.RequestContext.HTTP.Path)
}

func plainResponse(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{StatusCode: status, Body: body}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
