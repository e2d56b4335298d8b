// Package properties holds the real-estate catalog the phone agent sells
// from. The listings ship with the binary: the catalog is small, changes
// rarely, and the agent must answer about it with zero lookup latency.
package properties

import (
	"fmt"
	"strconv"
	"strings"
)

// Property is one development in the catalog.
type Property struct {
	ID          int      `json:"id"`
	Nombre      string   `json:"nombre"`
	Descripcion string   `json:"descripcion"`
	Ubicacion   string   `json:"ubicacion"`
	Precio      int64    `json:"precio"`
	Cuartos     int      `json:"cuartos"`
	Banos       int      `json:"banos"`
	AreaM2      int      `json:"area_m2"`
	Keywords    []string `json:"keywords"`
}

var catalog = []Property{
	{
		ID:          1,
		Nombre:      "Costa Azul",
		Descripcion: "Condominios frente al mar con acceso directo a la playa. Perfectos para inversión o casa de descanso.",
		Ubicacion:   "Puerto Vallarta, Jalisco",
		Precio:      5200000,
		Cuartos:     2,
		Banos:       2,
		AreaM2:      140,
		Keywords:    []string{"playa", "costa", "mar", "vallarta", "frente al mar", "condominio", "jalisco"},
	},
	{
		ID:          2,
		Nombre:      "Residencial Los Pinos",
		Descripcion: "Casas en privada con amenidades familiares. Parque infantil, cancha deportiva y casa club. Ambiente tranquilo y seguro.",
		Ubicacion:   "Veracruz, Veracruz",
		Precio:      2800000,
		Cuartos:     3,
		Banos:       2,
		AreaM2:      150,
		Keywords:    []string{"veracruz", "familia", "familiar", "niños", "infantil", "deportiva", "casa club", "privada", "seguro", "tranquilo"},
	},
	{
		ID:          3,
		Nombre:      "Residencial Vista Hermosa",
		Descripcion: "Exclusivo desarrollo residencial con acabados de lujo, áreas verdes y seguridad las 24 horas. Diseño moderno con espacios amplios y luminosos.",
		Ubicacion:   "Tijuana, Baja California",
		Precio:      3500000,
		Cuartos:     3,
		Banos:       2,
		AreaM2:      180,
		Keywords:    []string{"tijuana", "baja california", "lujo", "residencial", "seguridad", "moderno", "áreas verdes", "exclusivo"},
	},
	{
		ID:          4,
		Nombre:      "Villas del Mar",
		Descripcion: "Desarrollo costero con vista al océano. Acceso privado a la playa, club de playa exclusivo y arquitectura contemporánea.",
		Ubicacion:   "Cancún, Quintana Roo",
		Precio:      8500000,
		Cuartos:     4,
		Banos:       3,
		AreaM2:      250,
		Keywords:    []string{"cancún", "quintana roo", "playa", "costa", "océano", "mar", "club de playa", "vista al mar", "contemporáneo", "lujo"},
	},
	{
		ID:          5,
		Nombre:      "Sky Residences",
		Descripcion: "Lujo en altura con vistas panorámicas de la ciudad. Penthouse disponibles con terrazas amplias y acabados premium.",
		Ubicacion:   "Monterrey, Nuevo León",
		Precio:      6500000,
		Cuartos:     3,
		Banos:       3,
		AreaM2:      200,
		Keywords:    []string{"monterrey", "nuevo león", "penthouse", "lujo", "vistas", "panorámicas", "terraza", "premium", "ciudad", "altura"},
	},
}

// All returns every listing in catalog order.
func All() []Property {
	out := make([]Property, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up one listing.
func ByID(id int) (Property, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// Search returns listings whose keywords or location appear in the query.
// The match runs keyword-in-query, so free-form utterances like "busco algo
// cerca de la playa" hit every coastal development.
func Search(query string) []Property {
	q := strings.ToLower(query)
	if strings.TrimSpace(q) == "" {
		return nil
	}

	var out []Property
	seen := make(map[int]bool)
	for _, p := range catalog {
		for _, kw := range p.Keywords {
			if strings.Contains(q, kw) {
				out = append(out, p)
				seen[p.ID] = true
				break
			}
		}
		if !seen[p.ID] && strings.Contains(q, strings.ToLower(p.Ubicacion)) {
			out = append(out, p)
			seen[p.ID] = true
		}
	}
	return out
}

// FormatPrice renders a price as "$5,200,000 MXN".
func FormatPrice(price int64) string {
	digits := strconv.FormatInt(price, 10)
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}

	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s MXN", sign, sb.String())
}

// Describe renders the full sales description of one listing.
func Describe(p Property) string {
	return strings.TrimSpace(fmt.Sprintf(`Propiedad: %s
Ubicación: %s
Descripción: %s
Precio: %s
Características: %d recámaras, %d baños, %d m²`,
		p.Nombre, p.Ubicacion, p.Descripcion, FormatPrice(p.Precio), p.Cuartos, p.Banos, p.AreaM2))
}

// Summary lists every development in one line each, for quick agent recall.
func Summary() string {
	if len(catalog) == 0 {
		return "No tenemos propiedades disponibles en este momento."
	}

	lines := make([]string, 0, len(catalog))
	for _, p := range catalog {
		lines = append(lines, fmt.Sprintf("%s en %s - %d recámaras, %s",
			p.Nombre, p.Ubicacion, p.Cuartos, FormatPrice(p.Precio)))
	}
	return "Propiedades disponibles:\n" + strings.Join(lines, "\n")
}

// ContextBlock renders the catalog for an LLM system prompt so property
// mentions in transcripts resolve against real developments.
func ContextBlock() string {
	var sb strings.Builder
	sb.WriteString("Catálogo de propiedades:\n")
	for _, p := range catalog {
		fmt.Fprintf(&sb, "- %s en %s: %d recámaras, %d baños, %d m², %s\n",
			p.Nombre, p.Ubicacion, p.Cuartos, p.Banos, p.AreaM2, FormatPrice(p.Precio))
	}
	return strings.TrimSpace(sb.String())
}
