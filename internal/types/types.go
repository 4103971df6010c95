package types

// Chat entries ---------------------------------------------------------------------

type MessageAuthor string

const (
	AuthorUser MessageAuthor = "user"
	AuthorAI   MessageAuthor = "ai"
)

type MessageType string

const (
	MessageText             MessageType = "text"
	MessageSuggestion       MessageType = "suggestion"
	MessageArchitecture     MessageType = "architecture"
	MessageCode             MessageType = "code"
	MessageRefactorAnalysis MessageType = "refactor_analysis"
	MessageAppPreviewPrompt MessageType = "app_preview_prompt"
)

// CodeMap maps a filename to its source text. Filenames are unique per map.
type CodeMap map[string]string

// ChatMessage is one entry in a conversation. Entries are immutable once appended.
type ChatMessage struct {
	ID                string           `json:"id"`
	Author            MessageAuthor    `json:"author"`
	Type              MessageType      `json:"type"`
	Content           string           `json:"content"`
	SuggestionContext string           `json:"suggestion_context,omitempty"`
	Architecture      *AppArchitecture `json:"architecture,omitempty"`
	Code              CodeMap          `json:"code,omitempty"`
	CodeLanguage      string           `json:"code_language,omitempty"`
	// Timestamp is the display time captured at append, e.g. "3:04 PM".
	Timestamp string `json:"timestamp"`
}

// Generated architecture -----------------------------------------------------------

type AppArchitecture struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Microservices []Microservice `json:"microservices"`
	DataStores    []DataStore    `json:"data_stores"`
}

type Microservice struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	APIEndpoints []APIEndpoint `json:"api_endpoints"`
}

type APIEndpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type DataStoreType string

const (
	DataStorePostgres DataStoreType = "PostgreSQL"
	DataStoreMongo    DataStoreType = "MongoDB"
	DataStoreRedis    DataStoreType = "Redis"
	DataStoreS3       DataStoreType = "S3 Bucket"
	DataStoreOther    DataStoreType = "Other"
)

type DataStore struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Type              DataStoreType `json:"type"`
	SchemaDescription string        `json:"schema_description"`
}

// RefactorResult pairs a prose analysis with the rewritten code map.
type RefactorResult struct {
	Analysis       string  `json:"analysis"`
	RefactoredCode CodeMap `json:"refactored_code"`
}
