package oracle

// UserInfo is the birth information a reading is cast from.
type UserInfo struct {
	Name       string `json:"name"`
	BirthDate  string `json:"birthDate"`
	BirthTime  string `json:"birthTime,omitempty"`
	BirthPlace string `json:"birthPlace"`
	Gender     string `json:"gender,omitempty"`
}

// complete reports whether the fields required for a reading are present.
func (u UserInfo) complete() bool {
	return u.Name != "" && u.BirthDate != "" && u.BirthPlace != ""
}

// FortuneResult is a daily fortune reading.
type FortuneResult struct {
	Bazi        string   `json:"bazi"`
	Summary     string   `json:"summary"`
	Score       int      `json:"score"`
	Todo        []string `json:"todo"`
	NotTodo     []string `json:"notodo"`
	Insight     string   `json:"insight"`
	ImagePrompt string   `json:"imagePrompt"`

	LuckyColor     string `json:"luckyColor,omitempty"`
	LuckyDirection string `json:"luckyDirection,omitempty"`
	FiveElements   string `json:"fiveElements,omitempty"`

	// ImageURL is the wanted poster as a data URL. Empty when the poster
	// could not be generated.
	ImageURL string `json:"imageUrl"`
}

// CompatibilityResult is a two-person bond reading.
type CompatibilityResult struct {
	Score         int      `json:"score"`
	MatchAnalysis string   `json:"matchAnalysis"`
	Dynamic       string   `json:"dynamic"`
	Todo          []string `json:"todo"`
	NotTodo       []string `json:"notodo"`
	ImagePrompt   string   `json:"imagePrompt"`

	BaziA            string `json:"baziA,omitempty"`
	BaziB            string `json:"baziB,omitempty"`
	FiveElementMatch string `json:"fiveElementMatch,omitempty"`
	Advice           string `json:"advice,omitempty"`

	ImageURL string `json:"imageUrl"`
}

// Status is the readiness report shown to the user.
type Status struct {
	OK bool `json:"ok"`

	// Message is a short human-readable description of the state.
	Message string `json:"message"`

	// NeedsCredential is set when the user must supply or replace the API
	// key before anything else can work.
	NeedsCredential bool `json:"needsCredential"`
}
