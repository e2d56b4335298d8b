package analysis

import (
	"strings"
	"time"
)

// Lead grades assigned by the analyzer. The grade drives follow-up: caliente
// leads get a call script and a sales alert, the rest just get stored.
const (
	GradeCaliente = "caliente"
	GradeTibio    = "tibio"
	GradeFrio     = "frio"
)

// ValidGrade reports whether grade is one of the three accepted values.
func ValidGrade(grade string) bool {
	return grade == GradeCaliente || grade == GradeTibio || grade == GradeFrio
}

// Record is the stored analysis of one conversation. A conversation has at
// most one: re-analyzing replaces the previous record in place.
type Record struct {
	ID                     int64     `json:"id"`
	ConversationID         int64     `json:"conversation_id"`
	Resumen                string    `json:"resumen"`
	Sentimiento            string    `json:"sentimiento"`
	SentimientoDetalle     string    `json:"sentimiento_detalle,omitempty"`
	InteresCliente         string    `json:"interes_cliente"`
	NivelInteres           int       `json:"nivel_interes"`
	CalificacionLead       string    `json:"calificacion_lead"`
	ProximosPasos          []string  `json:"proximos_pasos"`
	PropiedadesMencionadas []string  `json:"propiedades_mencionadas"`
	PuntosClave            []string  `json:"puntos_clave"`
	CreatedAt              time.Time `json:"created_at"`
}

// IsHot reports whether the record grades the caller as a hot lead.
func (r *Record) IsHot() bool {
	return r.CalificacionLead == GradeCaliente
}

// UpsertRequest writes a conversation's analysis. Sentimiento takes the raw
// analyzer output; when it carries a detail suffix ("positivo - muy decidido")
// the store keeps the full string in the detail column and only the leading
// label in sentimiento.
type UpsertRequest struct {
	Resumen                string   `json:"resumen"`
	Sentimiento            string   `json:"sentimiento"`
	InteresCliente         string   `json:"interes_cliente"`
	NivelInteres           int      `json:"nivel_interes"`
	CalificacionLead       string   `json:"calificacion_lead"`
	ProximosPasos          []string `json:"proximos_pasos"`
	PropiedadesMencionadas []string `json:"propiedades_mencionadas"`
	PuntosClave            []string `json:"puntos_clave"`
}

// Validate checks the upsert request. An empty grade is allowed and falls
// back to tibio; level 0 means "not scored".
func (r *UpsertRequest) Validate() error {
	if r.CalificacionLead != "" && !ValidGrade(r.CalificacionLead) {
		return ErrInvalidGrade
	}
	if r.NivelInteres < 0 || r.NivelInteres > 10 {
		return ErrInvalidInterestLevel
	}
	return nil
}

// grade returns the lead grade to persist.
func (r *UpsertRequest) grade() string {
	if r.CalificacionLead == "" {
		return GradeTibio
	}
	return r.CalificacionLead
}

// splitSentiment separates the leading sentiment label from its detail
// suffix. The full raw string is always returned as detail.
func splitSentiment(raw string) (label, detail string) {
	if idx := strings.Index(raw, "-"); idx >= 0 {
		return strings.TrimSpace(raw[:idx]), raw
	}
	return raw, raw
}
