package errinfo

// ErrorInfo is the structured error payload surfaced over RPC.
type ErrorInfo struct {
	ErrorCode  string   `json:"error_code"`
	Phase      string   `json:"phase,omitempty"`
	Subphase   string   `json:"subphase,omitempty"`
	Retryable  bool     `json:"retryable"`
	Actions    []string `json:"actions,omitempty"`
	ProviderID string   `json:"provider_id,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

const (
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeProviderRateLimited   = "PROVIDER_RATE_LIMITED"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeStorageFailed         = "STORAGE_FAILED"
	CodeNotFound              = "NOT_FOUND"
	CodeEditorNotOpen         = "EDITOR_NOT_OPEN"
	CodeAssistantBusy         = "ASSISTANT_BUSY"
	CodeProposalNotFound      = "PROPOSAL_NOT_FOUND"
	CodeUserCanceled          = "USER_CANCELED"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
	ActionOpenEditor   = "open_editor"
)

const (
	PhaseAssistant = "assistant"
	PhaseAssist    = "assist"
	PhaseLibrary   = "library"
	PhaseReview    = "review"
	PhaseEditor    = "editor"
	PhaseSettings  = "settings"
)

const (
	SubphaseRequest  = "request"
	SubphaseToolCall = "tool_call"
	SubphaseProposal = "proposal"
	SubphaseConfirm  = "confirm"
)

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func ProviderRateLimited(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderRateLimited,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func StorageFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeStorageFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func NotFound(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNotFound,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func EditorNotOpen(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEditorNotOpen,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenEditor},
	}
}

func AssistantBusy(sessionID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeAssistantBusy,
		Phase:     PhaseAssistant,
		Retryable: true,
		Actions:   []string{ActionRetry},
		SessionID: sessionID,
	}
}

func ProposalNotFound(proposalID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProposalNotFound,
		Phase:     PhaseAssistant,
		Subphase:  SubphaseConfirm,
		Retryable: false,
		Detail:    proposalID,
	}
}

func UserCanceled(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUserCanceled,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}
