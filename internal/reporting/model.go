package reporting

import "time"

// HotLead is one row of the leads_calientes view: a conversation graded
// caliente joined with its analysis, newest call first.
type HotLead struct {
	CallSID          string    `json:"call_sid"`
	PhoneNumber      string    `json:"phone_number"`
	StartTime        time.Time `json:"start_time"`
	DurationSeconds  *float64  `json:"duration_seconds,omitempty"`
	Resumen          string    `json:"resumen"`
	Sentimiento      string    `json:"sentimiento"`
	NivelInteres     int       `json:"nivel_interes"`
	CalificacionLead string    `json:"calificacion_lead"`
	InteresCliente   string    `json:"interes_cliente"`
	ProximosPasos    []string  `json:"proximos_pasos"`
}

// DailyStats is one row of the estadisticas_conversaciones view. The
// averages are nil when no underlying row carries a value, e.g. a day whose
// calls were never finalized or never analyzed. Days with zero conversations
// do not appear at all.
type DailyStats struct {
	Fecha               time.Time `json:"fecha"`
	TotalConversaciones int       `json:"total_conversaciones"`
	DuracionPromedio    *float64  `json:"duracion_promedio,omitempty"`
	TotalMensajes       int       `json:"total_mensajes"`
	LeadsCalientes      int       `json:"leads_calientes"`
	LeadsTibios         int       `json:"leads_tibios"`
	LeadsFrios          int       `json:"leads_frios"`
	InteresPromedio     *float64  `json:"interes_promedio,omitempty"`
}
