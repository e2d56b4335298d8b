package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

var analyzerTracer = otel.Tracer("casavoz.internal.analysis")

const (
	defaultAnalysisModel = "llama-3.3-70b-versatile"

	analysisSystemPrompt = "Eres analista de ventas. Respondes solo JSON."
	scriptSystemPrompt   = "Eres un agente telefónico profesional y conciso."

	analysisMaxTokens   = 500
	analysisTemperature = 0.3
	scriptMaxTokens     = 400
	scriptTemperature   = 0.4
)

const analysisPromptFormat = `Analiza esta conversación inmobiliaria y responde SOLO en JSON:

%s

Formato JSON:
{
  "resumen": "resumen breve en 1-2 oraciones",
  "sentimiento": "positivo/neutral/negativo - detalle opcional",
  "interes_cliente": "qué busca el cliente",
  "nivel_interes": 5,
  "calificacion_lead": "caliente/tibio/frio",
  "proximos_pasos": ["acciones recomendadas"],
  "propiedades_mencionadas": ["propiedades discutidas"],
  "puntos_clave": ["datos importantes de la llamada"]
}`

const scriptPromptFormat = `Genera un script corto de llamada de seguimiento para este prospecto inmobiliario.

Resumen de la llamada anterior: %s
Qué busca: %s
Próximos pasos acordados: %s

El script debe saludar por teléfono, retomar la conversación anterior y proponer el siguiente paso. Máximo 6 líneas.`

// Analyzer turns a finished conversation into a stored lead analysis via a
// single LLM call, and produces follow-up call scripts for hot leads.
type Analyzer struct {
	llm            LLMClient
	model          string
	logger         *logging.Logger
	catalogContext string
}

// AnalyzerOption customizes an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithCatalogContext appends a property-catalog block to the analysis
// system prompt so property mentions in transcripts resolve against real
// listings.
func WithCatalogContext(block string) AnalyzerOption {
	return func(a *Analyzer) {
		a.catalogContext = strings.TrimSpace(block)
	}
}

// NewAnalyzer creates an analyzer bound to a completion backend.
func NewAnalyzer(llm LLMClient, model string, logger *logging.Logger, opts ...AnalyzerOption) *Analyzer {
	if llm == nil {
		panic("analysis: llm client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultAnalysisModel
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Analyzer{
		llm:    llm,
		model:  model,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildTranscript renders messages as the analyzer sees them, one line per
// utterance with the speaker labeled in Spanish.
func BuildTranscript(messages []*conversations.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		role := "Usuario"
		if msg.Role == conversations.RoleAssistant {
			role = "Asistente"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Analyze grades a conversation. The reply must be a JSON object; a fenced
// ```json block is tolerated and stripped before parsing.
func (a *Analyzer) Analyze(ctx context.Context, conv *conversations.Conversation, messages []*conversations.Message) (*UpsertRequest, error) {
	ctx, span := analyzerTracer.Start(ctx, "analysis.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("call_sid", conv.CallSID),
		attribute.Int("message_count", len(messages)),
	)

	if len(messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	system := []string{analysisSystemPrompt}
	if a.catalogContext != "" {
		system = append(system, a.catalogContext)
	}

	prompt := fmt.Sprintf(analysisPromptFormat, BuildTranscript(messages))
	resp, err := a.llm.Complete(ctx, LLMRequest{
		Model:       a.model,
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	a.logger.Debug("analysis completion received",
		"call_sid", conv.CallSID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	parsed, err := parseModelAnalysis(resp.Text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return parsed, nil
}

// GenerateFollowupScript writes a short follow-up call script for a graded
// lead, in the voice of the phone agent.
func (a *Analyzer) GenerateFollowupScript(ctx context.Context, conv *conversations.Conversation, rec *Record) (string, error) {
	ctx, span := analyzerTracer.Start(ctx, "analysis.followup_script")
	defer span.End()
	span.SetAttributes(attribute.String("call_sid", conv.CallSID))

	prompt := fmt.Sprintf(scriptPromptFormat,
		rec.Resumen,
		rec.InteresCliente,
		strings.Join(rec.ProximosPasos, "; "),
	)
	resp, err := a.llm.Complete(ctx, LLMRequest{
		Model:       a.model,
		System:      []string{scriptSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   scriptMaxTokens,
		Temperature: scriptTemperature,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	script := strings.TrimSpace(resp.Text)
	if script == "" {
		return "", fmt.Errorf("analysis: empty follow-up script for %s", conv.CallSID)
	}
	return script, nil
}

type modelAnalysis struct {
	Resumen                string      `json:"resumen"`
	Sentimiento            string      `json:"sentimiento"`
	InteresCliente         string      `json:"interes_cliente"`
	NivelInteres           json.Number `json:"nivel_interes"`
	CalificacionLead       string      `json:"calificacion_lead"`
	ProximosPasos          flexList    `json:"proximos_pasos"`
	PropiedadesMencionadas flexList    `json:"propiedades_mencionadas"`
	PuntosClave            flexList    `json:"puntos_clave"`
}

func parseModelAnalysis(raw string) (*UpsertRequest, error) {
	cleaned := stripCodeFence(raw)

	var parsed modelAnalysis
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	grade := strings.ToLower(strings.TrimSpace(parsed.CalificacionLead))
	if !ValidGrade(grade) {
		grade = GradeTibio
	}

	return &UpsertRequest{
		Resumen:                parsed.Resumen,
		Sentimiento:            parsed.Sentimiento,
		InteresCliente:         parsed.InteresCliente,
		NivelInteres:           interestLevel(parsed.NivelInteres),
		CalificacionLead:       grade,
		ProximosPasos:          parsed.ProximosPasos,
		PropiedadesMencionadas: parsed.PropiedadesMencionadas,
		PuntosClave:            parsed.PuntosClave,
	}, nil
}

// interestLevel coerces the model's score into [1,10], defaulting to the
// middle of the scale when the field is missing or unreadable.
func interestLevel(n json.Number) int {
	v, err := n.Int64()
	if err != nil {
		if f, ferr := n.Float64(); ferr == nil {
			v = int64(f)
		} else {
			return 5
		}
	}
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return int(v)
}

// stripCodeFence removes a surrounding markdown code fence from the model
// reply, with or without the json language tag.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
	}
	return strings.TrimSpace(s)
}

// flexList accepts both a JSON array of strings and a bare string, since
// smaller models sometimes collapse list fields into prose.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if strings.TrimSpace(single) == "" {
		*l = []string{}
		return nil
	}
	*l = []string{single}
	return nil
}
