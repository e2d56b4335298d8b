// Seeds a running API with a handful of finalized, analyzed demo calls so
// the admin dashboard and reports have data to show.
//
// Usage:
//
//	API_URL=... go run scripts/seed-calls.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type seedCall struct {
	Label    string
	Phone    string
	Duration float64
	Turns    []seedTurn
	Analysis map[string]interface{}
}

type seedTurn struct {
	Role    string
	Content string
}

var demoCalls = []seedCall{
	{
		Label:    "polanco-hot",
		Phone:    "+525511112222",
		Duration: 247,
		Turns: []seedTurn{
			{"user", "Hola, llamo por el departamento de dos recámaras en Polanco que vi anunciado."},
			{"assistant", "Con gusto. Está en la torre Lamartine, 95 metros cuadrados, dos baños y estacionamiento techado. ¿Le gustaría agendar una visita?"},
			{"user", "Sí, de hecho ya vendí mi casa y necesito mudarme el próximo mes. ¿Puede ser mañana?"},
			{"assistant", "Claro que sí, un asesor le confirmará mañana por la mañana. ¿Le marco a este mismo número?"},
			{"user", "Sí, por favor. Quedo pendiente."},
		},
		Analysis: map[string]interface{}{
			"resumen":                 "Cliente con urgencia real de mudanza pidió visita inmediata al departamento de Polanco.",
			"sentimiento":             "positivo - decidido",
			"interes_cliente":         "departamento de dos recámaras en Polanco",
			"nivel_interes":           9,
			"calificacion_lead":       "caliente",
			"proximos_pasos":          []string{"Confirmar visita de mañana", "Enviar ficha técnica por WhatsApp"},
			"propiedades_mencionadas": []string{"Torre Lamartine, Polanco"},
		},
	},
	{
		Label:    "coyoacan-warm",
		Phone:    "+525533334444",
		Duration: 163,
		Turns: []seedTurn{
			{"user", "Buenas tardes, quería preguntar por la casa de Coyoacán. ¿Sigue disponible?"},
			{"assistant", "Sí, sigue disponible. Tiene tres recámaras, jardín y cochera para dos autos. ¿Busca para habitarla o como inversión?"},
			{"user", "Para habitarla, pero apenas estamos viendo opciones. ¿Cuál es el precio?"},
			{"assistant", "Está en ocho millones novecientos mil pesos. Si gusta le comparto fotos y agendamos una visita sin compromiso."},
			{"user", "Mándeme las fotos y lo platico con mi esposa."},
		},
		Analysis: map[string]interface{}{
			"resumen":           "Pareja explorando opciones en Coyoacán, pidió fotos antes de decidir una visita.",
			"sentimiento":       "neutral",
			"interes_cliente":   "casa de tres recámaras en Coyoacán",
			"nivel_interes":     6,
			"calificacion_lead": "tibio",
			"proximos_pasos":    []string{"Enviar fotos", "Dar seguimiento en tres días"},
		},
	},
	{
		Label:    "wrong-number",
		Phone:    "+525555556666",
		Duration: 38,
		Turns: []seedTurn{
			{"user", "¿Bueno? ¿Es la pizzería?"},
			{"assistant", "No, le atiende la línea de atención inmobiliaria de Casavoz. ¿Le interesa información sobre alguna propiedad?"},
			{"user", "No no, marqué mal, disculpe."},
		},
		Analysis: map[string]interface{}{
			"resumen":           "Número equivocado, sin interés inmobiliario.",
			"sentimiento":       "neutral",
			"interes_cliente":   "ninguno",
			"nivel_interes":     1,
			"calificacion_lead": "frio",
		},
	},
}

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	fmt.Printf("🌱 Seeding Demo Calls\n")
	fmt.Printf("============================\n")
	fmt.Printf("API URL: %s\n\n", apiURL)

	runID := time.Now().Unix()
	seeded := 0
	for i, call := range demoCalls {
		callSID := fmt.Sprintf("CAseed%d%02d", runID, i)
		fmt.Printf("📞 %s (%s)\n", call.Label, callSID)
		if err := seedOne(apiURL, callSID, call); err != nil {
			fmt.Printf("   ❌ %v\n", err)
			continue
		}
		fmt.Printf("   ✅ seeded with %d messages\n", len(call.Turns))
		seeded++
	}

	fmt.Printf("\nDone: %d/%d calls seeded\n", seeded, len(demoCalls))
	if seeded < len(demoCalls) {
		os.Exit(1)
	}
}

func seedOne(apiURL, callSID string, call seedCall) error {
	start := time.Now().UTC().Add(-time.Duration(call.Duration) * time.Second)

	conv, err := request(http.MethodPost, apiURL+"/conversations", map[string]interface{}{
		"call_sid":     callSID,
		"phone_number": call.Phone,
		"start_time":   start.Format(time.RFC3339),
	}, http.StatusCreated)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	convID := int64(conv["id"].(float64))

	stamp := start
	for _, turn := range call.Turns {
		stamp = stamp.Add(20 * time.Second)
		_, err := request(http.MethodPost, fmt.Sprintf("%s/conversations/%d/messages", apiURL, convID), map[string]interface{}{
			"role":      turn.Role,
			"content":   turn.Content,
			"timestamp": stamp.Format(time.RFC3339Nano),
		}, http.StatusCreated)
		if err != nil {
			return fmt.Errorf("message: %w", err)
		}
	}

	userMsgs, assistantMsgs := 0, 0
	for _, turn := range call.Turns {
		if turn.Role == "user" {
			userMsgs++
		} else {
			assistantMsgs++
		}
	}
	_, err = request(http.MethodPost, fmt.Sprintf("%s/conversations/%d/finalize", apiURL, convID), map[string]interface{}{
		"end_time":                 start.Add(time.Duration(call.Duration) * time.Second).Format(time.RFC3339),
		"duration_seconds":         call.Duration,
		"total_user_messages":      userMsgs,
		"total_assistant_messages": assistantMsgs,
	}, http.StatusOK)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	_, err = request(http.MethodPut, fmt.Sprintf("%s/conversations/%d/analysis", apiURL, convID), call.Analysis, http.StatusOK)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}

func request(method, url string, body interface{}, wantStatus int) (map[string]interface{}, error) {
	raw, _ := json.Marshal(body)
	req, err := http.NewRequest(method, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, respBody)
	}

	out := map[string]interface{}{}
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &out)
	}
	return out, nil
}
