package classifier

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/nao1215/llmrouter/internal/engine"
)

// Classification はv0分類器の判定結果。
type Classification struct {
	// Intent は判定されたインテント。
	Intent string `json:"intent"`
	// Category は判定されたカテゴリ。
	Category engine.Category `json:"category"`
	// ComplexityScore は複雑度スコア。
	ComplexityScore int `json:"complexity_score"`
	// RiskScore はリスクスコア。
	RiskScore int `json:"risk_score"`
	// Confidence は判定の確信度。
	Confidence float64 `json:"confidence"`
	// RouteHint は推奨する処理経路。
	RouteHint engine.Route `json:"route_hint"`
	// Reason は判定理由。
	Reason string `json:"reason"`
}

// intentPattern はインテント名とパターンの組。
type intentPattern struct {
	name string
	re   *regexp2.Regexp
}

// intentSet は評価順を保ったインテント定義。
type intentSet []intentPattern

// find はテキストに一致する最初のインテント名を返す。
func (s intentSet) find(text string) (string, bool) {
	for _, p := range s {
		if search(p.re, text) {
			return p.name, true
		}
	}
	return "", false
}

// has はインテント名が含まれるかどうかを返す。
func (s intentSet) has(name string) bool {
	for _, p := range s {
		if p.name == name {
			return true
		}
	}
	return false
}

// mustIntents はインテント名とパターンの組からintentSetを生成する。
func mustIntents(pairs ...string) intentSet {
	set := make(intentSet, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		set = append(set, intentPattern{name: pairs[i], re: regexp2.MustCompile(pairs[i+1], regexp2.None)})
	}
	return set
}

var (
	staticIntents = mustIntents(
		"greeting", `^(hola|buenas|buenos dias|tardes|noches|hi|hello)$`,
		"closing", `^(chau|adios|gracias|ok|listo)$`,
		"faq_pricing", `(precio|costo|cuanto sale|planes|tarifas)`,
		"faq_schedule", `(horario|dias|agenda|turno)`,
		"faq_product_info", `(que es|como funciona|info|informacion)`,
		"confirmation_yes", `^(si|claro|correcto|dale)$`,
		"confirmation_no", `^(no|nunca|jamas)$`,
	)
	transactionalIntents = mustIntents(
		"lead_capture", `(contacto|llamanos|mail|correo)`,
	)
	conversationalIntents = mustIntents(
		"explanation_request", `(explicame|por que|diferencia)`,
		"product_comparison", `(comparar|vs|mejor que)`,
	)
	criticalIntents = mustIntents(
		"ats_evaluation", `(evaluacion|candidato|perfil|liderazgo|soft skills)`,
		"legal_or_health_related", `(legal|contrato|salud|medico|denuncia)`,
	)

	quickReplyPattern    = regexp2.MustCompile(`^(hola|gracias|ok)$`, regexp2.None)
	conditionalPattern   = regexp2.MustCompile(`(si|depende|cuando)`, regexp2.None)
	realtimePattern      = regexp2.MustCompile(`(tiempo real|voice)`, regexp2.None)
	errorPattern         = regexp2.MustCompile(`(incorrecto|daño|error)`, regexp2.None)
	legalPattern         = regexp2.MustCompile(`(legal|laboral)`, regexp2.None)
	accessibilityPattern = regexp2.MustCompile(`(salud|accesibilidad)`, regexp2.None)
)

const (
	// longTextWordCount はこの語数を超える未分類テキストを説明要求とみなす。
	longTextWordCount = 10
	// interviewRiskFloor は面接文脈で保証するリスクの下限。
	interviewRiskFloor = 80
)

// Classifier はv0分類器。状態を持たず、複数のゴルーチンから同時に使用できる。
type Classifier struct{}

// New はv0分類器を生成する。
func New() *Classifier {
	return &Classifier{}
}

// Classify はリクエストを分類する。
func (c *Classifier) Classify(req engine.Request) Classification {
	channel := req.Channel
	if channel == "" {
		channel = "web"
	}
	missingSlots := engine.HasMissingSlots(req.Metadata)
	interview, _ := req.Metadata["is_interview"].(bool)
	tier, _ := req.Metadata["user_tier"].(string)
	if tier == "" {
		tier = "free"
	}

	text := strings.TrimSpace(strings.ToLower(req.Text))
	intent, complexity := detectIntent(text, missingSlots)
	risk := calculateRisk(text, channel, req.Product, intent, interview, tier)
	category := determineCategory(intent, complexity, req.Product, missingSlots, interview)

	reason := fmt.Sprintf("Category: %s matched. C=%d, R=%d.", category, complexity, risk)
	if missingSlots {
		reason = "Transaccional: Faltan slots."
	}
	if staticIntents.has(intent) {
		reason = "FAQ/Static directa."
	}
	if interview {
		reason = "Crítico: Entrevista activa."
	}

	confidence := 0.85
	if complexity < 40 {
		confidence = 0.95
	}

	return Classification{
		Intent:          intent,
		Category:        category,
		ComplexityScore: complexity,
		RiskScore:       risk,
		Confidence:      confidence,
		RouteHint:       routeFor(category),
		Reason:          reason,
	}
}

// detectIntent はインテントと複雑度を判定する。
// 優先順は critical → conversational → transactional → static。
func detectIntent(text string, missingSlots bool) (string, int) {
	if search(quickReplyPattern, text) {
		if strings.Contains(text, "hola") {
			return "greeting", 0
		}
		return "closing", 0
	}

	if missingSlots {
		return "slot_filling", 10
	}

	if name, ok := criticalIntents.find(text); ok {
		return name, 80
	}
	if name, ok := conversationalIntents.find(text); ok {
		if search(conditionalPattern, text) {
			return name, 40
		}
		return name, 25
	}
	if name, ok := transactionalIntents.find(text); ok {
		return name, 10
	}
	if name, ok := staticIntents.find(text); ok {
		return name, 0
	}

	if len(strings.Fields(text)) > longTextWordCount {
		return "explanation_request", 25
	}
	return "system_command", 0
}

// calculateRisk はキーワードと文脈からリスクスコアを算出する。
func calculateRisk(text, channel, product, intent string, interview bool, tier string) int {
	risk := 0
	if search(realtimePattern, channel) {
		risk += 20
	}
	if search(errorPattern, text) {
		risk += 40
	}
	if search(legalPattern, text) {
		risk += 60
	}
	if search(accessibilityPattern, text) {
		risk += 80
	}

	// ATSは面接文脈とみなす
	if product == "ats" && intent != "greeting" {
		risk = max(risk, interviewRiskFloor)
	}
	if interview {
		risk = max(risk, interviewRiskFloor)
	}
	if tier == "enterprise" {
		risk += 20
	}
	return min(risk, 100)
}

// determineCategory はインテントと文脈からカテゴリを決定する。
func determineCategory(intent string, complexity int, product string, missingSlots, interview bool) engine.Category {
	var category engine.Category
	switch {
	case staticIntents.has(intent):
		category = engine.CategoryStatic
	case transactionalIntents.has(intent) || intent == "slot_filling":
		category = engine.CategoryTransactional
	case conversationalIntents.has(intent):
		category = engine.CategoryConversational
	case criticalIntents.has(intent):
		category = engine.CategoryCritical
	case complexity >= 80:
		category = engine.CategoryCritical
	case complexity >= 25:
		category = engine.CategoryConversational
	default:
		category = engine.CategoryStatic
	}

	if missingSlots {
		category = engine.CategoryTransactional
	}
	if product == "ats" && !staticIntents.has(intent) &&
		(category == engine.CategoryStatic || category == engine.CategoryTransactional) {
		category = engine.CategoryConversational
	}
	if interview {
		category = engine.CategoryCritical
	}
	return category
}

// routeFor はカテゴリに対応する経路を返す。
func routeFor(category engine.Category) engine.Route {
	switch category {
	case engine.CategoryConversational:
		return engine.RouteDeepSeek
	case engine.CategoryCritical:
		return engine.RouteDeepSeekThenGPT5
	}
	return engine.RouteAntigravity
}

// search はパターンがテキストのいずれかの位置に一致するかを返す。
// パターンは固定のためタイムアウトは発生せず、エラーは不一致として扱う。
func search(re *regexp2.Regexp, text string) bool {
	ok, err := re.MatchString(text)
	return err == nil && ok
}
