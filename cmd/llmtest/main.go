package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/casavoz/call-platform/internal/analysis"
)

// Smoke test for the analysis LLM backends. Run it with real credentials in
// .env to confirm connectivity before deploying a new provider or model.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Sample transcript in the shape the analyzer sends
	messages := []analysis.ChatMessage{
		{Role: analysis.ChatRoleUser, Content: "Hola, vi un departamento de dos recámaras en Polanco y quiero saber el precio."},
		{Role: analysis.ChatRoleAssistant, Content: "¡Con gusto! El departamento en Polanco tiene un precio de 4.5 millones de pesos e incluye dos estacionamientos. ¿Le gustaría agendar una visita?"},
		{Role: analysis.ChatRoleUser, Content: "Sí, me interesa. ¿Tienen disponibilidad este fin de semana?"},
	}

	systemPrompt := []string{
		"Eres un asistente inmobiliario amable. Responde breve y en español.",
	}

	divider := strings.Repeat("=", 60)
	fmt.Println(divider)
	fmt.Println("Analysis LLM Backend Test")
	fmt.Println(divider)

	// Test Groq
	groqKey := os.Getenv("GROQ_API_KEY")
	if groqKey != "" {
		fmt.Println("\n[1] Testing Groq...")
		model := os.Getenv("GROQ_MODEL")
		if model == "" {
			model = "llama-3.3-70b-versatile"
		}
		client, err := analysis.NewGroqLLMClient(groqKey, os.Getenv("GROQ_BASE_URL"))
		if err != nil {
			fmt.Printf("    ❌ Failed to create Groq client: %v\n", err)
		} else {
			runCompletion(ctx, "Groq", client, analysis.LLMRequest{
				Model:       model,
				System:      systemPrompt,
				Messages:    messages,
				MaxTokens:   200,
				Temperature: 0.7,
			})
		}
	} else {
		fmt.Println("\n[1] Skipping Groq test (GROQ_API_KEY not set)")
	}

	// Test Gemini
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey != "" {
		fmt.Println("\n[2] Testing Gemini...")
		model := os.Getenv("GEMINI_MODEL_ID")
		if model == "" {
			model = "gemini-2.5-flash"
		}
		client, err := analysis.NewGeminiLLMClient(ctx, geminiKey, model)
		if err != nil {
			fmt.Printf("    ❌ Failed to create Gemini client: %v\n", err)
		} else {
			runCompletion(ctx, "Gemini", client, analysis.LLMRequest{
				Model:       model,
				System:      systemPrompt,
				Messages:    messages,
				MaxTokens:   200,
				Temperature: 0.7,
			})
		}
	} else {
		fmt.Println("\n[2] Skipping Gemini test (GEMINI_API_KEY not set)")
	}

	fmt.Println("\n[3] Skipping direct Bedrock test (requires AWS SDK setup)")
	fmt.Println("    Set ANALYSIS_LLM_BACKEND=bedrock and run the analysis worker to exercise it")

	fmt.Println("\n" + divider)
	fmt.Println("Test Summary")
	fmt.Println(divider)
	fmt.Println("✅ Any backend that responded above is ready for ANALYSIS_LLM_BACKEND")
	fmt.Println("✅ The analyzer sends the full transcript plus the property catalog context")
}

func runCompletion(ctx context.Context, name string, client analysis.LLMClient, req analysis.LLMRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    ❌ %s error: %v\n", name, err)
		return
	}
	fmt.Printf("    ✅ %s response (%v):\n", name, elapsed.Round(time.Millisecond))
	fmt.Printf("    %s\n", resp.Text)
	fmt.Printf("    Tokens: in=%d, out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
