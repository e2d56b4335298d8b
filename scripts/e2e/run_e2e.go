// Package main runs E2E tests against a live call-platform deployment.
//
// Scenarios cover the full life of a recorded call:
//   - Conversation capture (create, append transcript, finalize)
//   - Finalize idempotency (a call ends once)
//   - Twilio status callback fallback finalization
//   - TwiML webhook response (media stream + status callback wiring)
//   - Manual analysis upsert and hot-lead reporting
//   - Queue-driven analysis pipeline (enqueue, poll job, read verdict)
//   - Not-found and validation behavior
//   - Admin surface auth (rejects anonymous, accepts signed JWT)
//
// The analysis-pipeline scenario needs a running worker (inline or the
// analysis-worker binary) behind the target API.
//
// Usage:
//
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go [scenario-name]
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go                # runs all
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go happy-path     # runs one
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	callerPhone  = "+525512345678"
	maxWaitSecs  = 60
	pollInterval = 2 * time.Second
)

var (
	apiBase   string
	jwtSecret string
	jwt       string
	runID     string
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newCallSID returns a SID unique to this run so scenarios never collide
// with leftovers in a shared environment.
func newCallSID(label string) string {
	return fmt.Sprintf("CAe2e%s%s", runID, label)
}

func postJSON(path string, body interface{}) (int, map[string]interface{}, error) {
	raw, _ := json.Marshal(body)
	resp, err := http.Post(apiBase+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	return decodeResponse(resp)
}

func putJSON(path string, body interface{}) (int, map[string]interface{}, error) {
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, apiBase+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return decodeResponse(resp)
}

func getJSON(path string, authed bool) (int, map[string]interface{}, error) {
	req, _ := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return decodeResponse(resp)
}

func postForm(path string, form url.Values) (int, string, error) {
	resp, err := http.Post(apiBase+path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

func decodeResponse(resp *http.Response) (int, map[string]interface{}, error) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("non-JSON response (%d): %s", resp.StatusCode, body)
		}
	}
	return resp.StatusCode, out, nil
}

// createConversation registers a call and returns its numeric ID.
func createConversation(callSID string) (int64, error) {
	status, conv, err := postJSON("/conversations", map[string]interface{}{
		"call_sid":     callSID,
		"phone_number": callerPhone,
		"start_time":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("create returned %d: %v", status, conv)
	}
	id, ok := conv["id"].(float64)
	if !ok {
		return 0, fmt.Errorf("create response missing id: %v", conv)
	}
	return int64(id), nil
}

func addMessage(convID int64, role, content string) error {
	status, body, err := postJSON(fmt.Sprintf("/conversations/%d/messages", convID), map[string]interface{}{
		"role":      role,
		"content":   content,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("append returned %d: %v", status, body)
	}
	return nil
}

func finalize(convID int64, durationSecs float64, userMsgs, assistantMsgs int) (int, map[string]interface{}, error) {
	return postJSON(fmt.Sprintf("/conversations/%d/finalize", convID), map[string]interface{}{
		"end_time":                 time.Now().UTC().Format(time.RFC3339),
		"duration_seconds":         durationSecs,
		"total_user_messages":      userMsgs,
		"total_assistant_messages": assistantMsgs,
	})
}

// seedConversation creates a short finalized Spanish transcript and returns
// the conversation ID.
func seedConversation(callSID string) (int64, error) {
	convID, err := createConversation(callSID)
	if err != nil {
		return 0, err
	}
	turns := []struct{ role, content string }{
		{"user", "Hola, vi el departamento de dos recámaras en Polanco y quiero más información."},
		{"assistant", "Claro que sí. El departamento tiene 95 metros cuadrados, dos baños y estacionamiento. ¿Le gustaría agendar una visita?"},
		{"user", "Sí, me interesa mucho. ¿Podría ser este sábado por la mañana?"},
		{"assistant", "Por supuesto, un asesor le confirmará la cita del sábado por este número."},
	}
	for _, turn := range turns {
		if err := addMessage(convID, turn.role, turn.content); err != nil {
			return 0, err
		}
	}
	if status, body, err := finalize(convID, 184, 2, 2); err != nil {
		return 0, err
	} else if status != http.StatusOK {
		return 0, fmt.Errorf("finalize returned %d: %v", status, body)
	}
	return convID, nil
}

func deleteConversation(convID int64) {
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/conversations/%d", apiBase, convID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

// waitForJob polls the analysis job until it leaves the pending/processing
// states or the deadline passes.
func waitForJob(jobID string, maxSecs int) (map[string]interface{}, error) {
	deadline := time.Now().Add(time.Duration(maxSecs) * time.Second)
	for time.Now().Before(deadline) {
		status, job, err := getJSON("/analysis-jobs/"+jobID, false)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("job status returned %d: %v", status, job)
		}
		state, _ := job["status"].(string)
		if state != "pending" && state != "processing" {
			return job, nil
		}
		time.Sleep(pollInterval)
	}
	return nil, fmt.Errorf("job %s still pending after %ds", jobID, maxSecs)
}

func generateJWT(secret string) string {
	header := base64url(map[string]string{"alg": "HS256", "typ": "JWT"})
	now := time.Now()
	payload := base64url(map[string]interface{}{
		"sub": "e2e",
		"iat": now.Unix(),
		"exp": now.Add(12 * time.Hour).Unix(),
	})
	unsigned := header + "." + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	sig := strings.TrimRight(base64.URLEncoding.EncodeToString(mac.Sum(nil)), "=")
	return unsigned + "." + sig
}

func base64url(v interface{}) string {
	b, _ := json.Marshal(v)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "=")
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

// 1. Happy path: capture a call, finalize it, grade it hot, see it reported.
func scenarioHappyPath(t *T) {
	callSID := newCallSID("happy")
	convID, err := seedConversation(callSID)
	if err != nil {
		t.fatalf("seed conversation: %v", err)
		return
	}
	defer deleteConversation(convID)

	status, conv, err := getJSON(fmt.Sprintf("/conversations/%d", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get conversation: %d %v", status, err)
		return
	}
	t.check("conversation finalized", conv["end_time"] != nil)
	t.check("duration recorded", conv["duration_seconds"] == float64(184))
	t.check("message counters present", conv["total_user_messages"] == float64(2))

	status, msgs, err := getJSON(fmt.Sprintf("/conversations/%d/messages", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get messages: %d %v", status, err)
		return
	}
	list, _ := msgs["messages"].([]interface{})
	t.check("four transcript turns", len(list) == 4)
	if len(list) == 4 {
		first, _ := list[0].(map[string]interface{})
		last, _ := list[3].(map[string]interface{})
		t.check("transcript starts with caller", first["role"] == "user")
		t.check("transcript ends with assistant", last["role"] == "assistant")
	}

	status, _, err = putJSON(fmt.Sprintf("/conversations/%d/analysis", convID), map[string]interface{}{
		"resumen":           "Cliente muy interesado en el departamento de Polanco, pidió visita el sábado.",
		"sentimiento":       "positivo",
		"interes_cliente":   "departamento de dos recámaras en Polanco",
		"nivel_interes":     9,
		"calificacion_lead": "caliente",
		"proximos_pasos":    []string{"Confirmar visita del sábado"},
	})
	if err != nil || status != http.StatusOK {
		t.fatalf("upsert analysis: %d %v", status, err)
		return
	}

	status, analysis, err := getJSON(fmt.Sprintf("/conversations/%d/analysis", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get analysis: %d %v", status, err)
		return
	}
	t.check("lead graded hot", analysis["calificacion_lead"] == "caliente")
	t.check("interest level kept", analysis["nivel_interes"] == float64(9))

	status, report, err := getJSON("/reports/hot-leads?limit=50", false)
	if err != nil || status != http.StatusOK {
		t.fatalf("hot leads report: %d %v", status, err)
		return
	}
	found := false
	leads, _ := report["leads"].([]interface{})
	for _, l := range leads {
		lead, _ := l.(map[string]interface{})
		if lead["call_sid"] == callSID {
			found = true
		}
	}
	t.check("hot lead surfaces in report", found)
}

// 2. Finalize is idempotent: the second attempt conflicts.
func scenarioFinalizeIdempotent(t *T) {
	convID, err := seedConversation(newCallSID("final"))
	if err != nil {
		t.fatalf("seed conversation: %v", err)
		return
	}
	defer deleteConversation(convID)

	status, _, err := finalize(convID, 200, 3, 3)
	if err != nil {
		t.fatalf("second finalize: %v", err)
		return
	}
	t.check("second finalize conflicts", status == http.StatusConflict)

	status, conv, err := getJSON(fmt.Sprintf("/conversations/%d", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get conversation: %d %v", status, err)
		return
	}
	t.check("original duration preserved", conv["duration_seconds"] == float64(184))
}

// 3. Status callback: Twilio reports the call ended before a finalize arrived.
func scenarioStatusCallback(t *T) {
	callSID := newCallSID("status")
	convID, err := createConversation(callSID)
	if err != nil {
		t.fatalf("create conversation: %v", err)
		return
	}
	defer deleteConversation(convID)

	status, _, err := postForm("/voice/status", url.Values{
		"CallSid":      {callSID},
		"CallStatus":   {"completed"},
		"CallDuration": {"93"},
	})
	if err != nil {
		t.fatalf("status callback: %v", err)
		return
	}
	t.check("callback accepted", status == http.StatusNoContent)

	status, conv, err := getJSON(fmt.Sprintf("/conversations/%d", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get conversation: %d %v", status, err)
		return
	}
	t.check("call finalized by callback", conv["end_time"] != nil)
	t.check("duration taken from CallDuration", conv["duration_seconds"] == float64(93))

	status, _, err = postForm("/voice/status", url.Values{
		"CallSid":    {callSID},
		"CallStatus": {"completed"},
	})
	if err != nil {
		t.fatalf("repeat callback: %v", err)
		return
	}
	t.check("repeat callback is a no-op", status == http.StatusNoContent)
}

// 4. TwiML webhook wires the media stream and the status callback.
func scenarioTwiml(t *T) {
	status, body, err := postForm("/voice/twiml", url.Values{
		"CallSid": {newCallSID("twiml")},
		"From":    {callerPhone},
	})
	if err != nil {
		t.fatalf("twiml webhook: %v", err)
		return
	}
	t.check("webhook responds 200", status == http.StatusOK)
	t.check("response opens a media stream", strings.Contains(body, "<Stream"))
	t.check("stream URL is websocket", strings.Contains(body, "wss://"))
	t.check("status callback registered", strings.Contains(body, "/voice/status"))
	t.check("greeting is Spanish", strings.Contains(body, "es-MX"))
}

// 5. Queue-driven analysis: enqueue a job and poll it to a verdict.
func scenarioAnalysisPipeline(t *T) {
	convID, err := seedConversation(newCallSID("pipe"))
	if err != nil {
		t.fatalf("seed conversation: %v", err)
		return
	}
	defer deleteConversation(convID)

	status, accepted, err := postJSON(fmt.Sprintf("/conversations/%d/analyze", convID), nil)
	if err != nil {
		t.fatalf("enqueue analysis: %v", err)
		return
	}
	if status == http.StatusServiceUnavailable {
		t.fatalf("analysis queue not configured on target")
		return
	}
	t.check("job accepted", status == http.StatusAccepted)
	jobID, _ := accepted["job_id"].(string)
	if jobID == "" {
		t.fatalf("no job_id in response: %v", accepted)
		return
	}

	job, err := waitForJob(jobID, maxWaitSecs)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("job completed", job["status"] == "completed")
	grade, _ := job["grade"].(string)
	t.check("job carries a lead grade", grade == "caliente" || grade == "tibio" || grade == "frio")

	status, analysis, err := getJSON(fmt.Sprintf("/conversations/%d/analysis", convID), false)
	if err != nil || status != http.StatusOK {
		t.fatalf("get analysis: %d %v", status, err)
		return
	}
	resumen, _ := analysis["resumen"].(string)
	t.check("analysis stored with summary", resumen != "")
	t.check("analysis grade matches job", analysis["calificacion_lead"] == job["grade"])
}

// 6. Unknown IDs and SIDs report not found.
func scenarioNotFound(t *T) {
	status, _, err := getJSON("/conversations/999999999", false)
	if err != nil {
		t.fatalf("get unknown conversation: %v", err)
		return
	}
	t.check("unknown conversation is 404", status == http.StatusNotFound)

	status, _, err = getJSON("/conversations/by-sid/CAe2e-missing", false)
	if err != nil {
		t.fatalf("get unknown SID: %v", err)
		return
	}
	t.check("unknown call SID is 404", status == http.StatusNotFound)

	status, _, err = getJSON("/conversations/999999999/analysis", false)
	if err != nil {
		t.fatalf("get unknown analysis: %v", err)
		return
	}
	t.check("missing analysis is 404", status == http.StatusNotFound)
}

// 7. Malformed input is rejected before it reaches the store.
func scenarioValidation(t *T) {
	status, _, err := postJSON("/conversations", map[string]interface{}{
		"phone_number": callerPhone,
	})
	if err != nil {
		t.fatalf("create without SID: %v", err)
		return
	}
	t.check("create without call_sid is 400", status == http.StatusBadRequest)

	convID, err := createConversation(newCallSID("valid"))
	if err != nil {
		t.fatalf("create conversation: %v", err)
		return
	}
	defer deleteConversation(convID)

	status, _, err = postJSON(fmt.Sprintf("/conversations/%d/messages", convID), map[string]interface{}{
		"role":    "operator",
		"content": "hola",
	})
	if err != nil {
		t.fatalf("append bad role: %v", err)
		return
	}
	t.check("unknown role is 400", status == http.StatusBadRequest)

	status, _, err = postJSON(fmt.Sprintf("/conversations/%d/messages", convID), map[string]interface{}{
		"role": "user",
	})
	if err != nil {
		t.fatalf("append empty content: %v", err)
		return
	}
	t.check("empty content is 400", status == http.StatusBadRequest)
}

// 8. Admin surface: anonymous requests bounce, a signed JWT gets through.
func scenarioAdminAuth(t *T) {
	status, _, err := getJSON("/admin/dashboard", false)
	if err != nil {
		t.fatalf("anonymous dashboard: %v", err)
		return
	}
	t.check("anonymous admin request is 401", status == http.StatusUnauthorized)

	status, dashboard, err := getJSON("/admin/dashboard", true)
	if err != nil {
		t.fatalf("authed dashboard: %v", err)
		return
	}
	t.check("signed JWT is accepted", status == http.StatusOK)
	if status == http.StatusOK {
		_, hasCalls := dashboard["calls"].(map[string]interface{})
		t.check("dashboard reports call metrics", hasCalls)
	}
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	jwtSecret = os.Getenv("ADMIN_JWT_SECRET")
	if apiBase == "" || jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and ADMIN_JWT_SECRET required")
		os.Exit(1)
	}
	jwt = generateJWT(jwtSecret)
	runID = fmt.Sprintf("%d", time.Now().Unix())

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"finalize-idempotent", scenarioFinalizeIdempotent},
		{"status-callback", scenarioStatusCallback},
		{"twiml", scenarioTwiml},
		{"analysis-pipeline", scenarioAnalysisPipeline},
		{"not-found", scenarioNotFound},
		{"validation", scenarioValidation},
		{"admin-auth", scenarioAdminAuth},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}
