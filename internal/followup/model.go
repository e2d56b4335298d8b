package followup

import "time"

// Script is a follow-up call script generated for a conversation. Enviado
// flips exactly once, when the script is delivered to the sales inbox.
type Script struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	ScriptContent  string     `json:"script_content"`
	Enviado        bool       `json:"enviado"`
	FechaEnvio     *time.Time `json:"fecha_envio,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
