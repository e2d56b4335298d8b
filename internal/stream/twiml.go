package stream

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

const (
	twimlGreeting      = "Conectando, por favor espera."
	twimlMaxCallLength = 3600 // seconds
)

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Say     twimlSay     `xml:"Say"`
	Record  twimlRecord  `xml:"Record"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlSay struct {
	Language string `xml:"language,attr"`
	Text     string `xml:",chardata"`
}

type twimlRecord struct {
	RecordingStatusCallback       string `xml:"recordingStatusCallback,attr"`
	RecordingStatusCallbackMethod string `xml:"recordingStatusCallbackMethod,attr"`
	MaxLength                     int    `xml:"maxLength,attr"`
	PlayBeep                      bool   `xml:"playBeep,attr"`
	Transcribe                    bool   `xml:"transcribe,attr"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL   string `xml:"url,attr"`
	Track string `xml:"track,attr"`
}

// Twiml handles POST /voice/twiml. Twilio fetches call instructions from
// here when a call comes in: greet the caller, record the call leg, and
// connect the media stream back to this host.
func (h *Handler) Twiml(w http.ResponseWriter, r *http.Request) {
	// Behind the webhook proxy the original public host arrives forwarded.
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}

	resp := twimlResponse{
		Say: twimlSay{Language: "es-MX", Text: twimlGreeting},
		Record: twimlRecord{
			RecordingStatusCallback:       fmt.Sprintf("https://%s/voice/status", host),
			RecordingStatusCallbackMethod: http.MethodPost,
			MaxLength:                     twimlMaxCallLength,
		},
		Connect: twimlConnect{
			Stream: twimlStream{
				URL:   fmt.Sprintf("wss://%s/voice/stream", host),
				Track: "inbound_track",
			},
		},
	}

	out, err := xml.Marshal(resp)
	if err != nil {
		h.logger.Error("stream: failed to marshal twiml", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
