package engine

import (
	"context"
	"encoding/json"
	"strings"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
	"studybench/engine/internal/settings"
)

type providerConfig struct {
	ProviderID string `json:"provider_id"`
	Enabled    bool   `json:"enabled"`
	Model      string `json:"model,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	HasAPIKey  bool   `json:"has_api_key"`
}

type providersConfigResult struct {
	ActiveProvider string           `json:"active_provider"`
	Providers      []providerConfig `json:"providers"`
}

func (e *Engine) ProvidersGetConfig(_ context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	cfg, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
	}
	result := providersConfigResult{ActiveProvider: cfg.ActiveProvider}
	for _, providerID := range []string{settings.ProviderOpenAI, settings.ProviderAnthropic} {
		entry := cfg.Providers[providerID]
		key, keyErr := e.secrets.GetProviderKey(providerID)
		if keyErr != nil {
			return nil, errinfo.StorageFailed(errinfo.PhaseSettings, keyErr.Error())
		}
		result.Providers = append(result.Providers, providerConfig{
			ProviderID: providerID,
			Enabled:    entry.Enabled,
			Model:      entry.Model,
			BaseURL:    entry.BaseURL,
			HasAPIKey:  key != "",
		})
	}
	return result, nil
}

type setConfigParams struct {
	ActiveProvider string  `json:"active_provider,omitempty"`
	ProviderID     string  `json:"provider_id,omitempty"`
	Enabled        *bool   `json:"enabled,omitempty"`
	Model          *string `json:"model,omitempty"`
	BaseURL        *string `json:"base_url,omitempty"`
}

func (e *Engine) ProvidersSetConfig(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p setConfigParams
	if errInfo := parseParams(errinfo.PhaseSettings, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if p.ActiveProvider != "" && !settings.KnownProvider(p.ActiveProvider) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider: "+p.ActiveProvider)
	}
	if p.ProviderID != "" && !settings.KnownProvider(p.ProviderID) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider: "+p.ProviderID)
	}
	updated, err := e.settings.Update(func(cfg *settings.Settings) {
		if p.ActiveProvider != "" {
			cfg.ActiveProvider = p.ActiveProvider
		}
		if p.ProviderID == "" {
			return
		}
		entry := cfg.Providers[p.ProviderID]
		if p.Enabled != nil {
			entry.Enabled = *p.Enabled
		}
		if p.Model != nil {
			entry.Model = strings.TrimSpace(*p.Model)
		}
		if p.BaseURL != nil {
			entry.BaseURL = strings.TrimSpace(*p.BaseURL)
		}
		cfg.Providers[p.ProviderID] = entry
	})
	if err != nil {
		return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("providers.config_updated", "active_provider", updated.ActiveProvider)
	return e.ProvidersGetConfig(ctx, nil)
}

type apiKeyParams struct {
	ProviderID string `json:"provider_id"`
	APIKey     string `json:"api_key,omitempty"`
}

func (e *Engine) ProvidersSetApiKey(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p apiKeyParams
	if errInfo := parseParams(errinfo.PhaseSettings, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if !settings.KnownProvider(p.ProviderID) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider: "+p.ProviderID)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "api_key must not be empty")
	}
	if err := e.secrets.SetProviderKey(p.ProviderID, strings.TrimSpace(p.APIKey)); err != nil {
		return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("providers.api_key_set", "provider_id", p.ProviderID)
	return map[string]bool{"saved": true}, nil
}

func (e *Engine) ProvidersClearApiKey(_ context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p apiKeyParams
	if errInfo := parseParams(errinfo.PhaseSettings, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if !settings.KnownProvider(p.ProviderID) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider: "+p.ProviderID)
	}
	if err := e.secrets.ClearProviderKey(p.ProviderID); err != nil {
		return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("providers.api_key_cleared", "provider_id", p.ProviderID)
	return map[string]bool{"cleared": true}, nil
}

func (e *Engine) ProvidersValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var p apiKeyParams
	if errInfo := parseParams(errinfo.PhaseSettings, params, &p); errInfo != nil {
		return nil, errInfo
	}
	if !settings.KnownProvider(p.ProviderID) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider: "+p.ProviderID)
	}
	apiKey := strings.TrimSpace(p.APIKey)
	if apiKey == "" {
		stored, err := e.secrets.GetProviderKey(p.ProviderID)
		if err != nil {
			return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
		}
		apiKey = stored
	}
	if apiKey == "" {
		info := errinfo.ProviderNotConfigured(errinfo.PhaseSettings)
		info.ProviderID = p.ProviderID
		return nil, info
	}
	cfg, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.StorageFailed(errinfo.PhaseSettings, err.Error())
	}
	transport := e.transport(p.ProviderID, cfg.Providers[p.ProviderID].BaseURL)
	if err := transport.ValidateKey(ctx, apiKey); err != nil {
		return nil, mapLLMError(errinfo.PhaseSettings, p.ProviderID, err)
	}
	return map[string]bool{"valid": true}, nil
}

// ProvidersTestConnection sends a minimal completion through the
// active provider to prove the whole path works end to end.
func (e *Engine) ProvidersTestConnection(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	session, errInfo := e.resolveProvider(errinfo.PhaseSettings)
	if errInfo != nil {
		return nil, errInfo
	}
	raw, err := session.transport.Complete(ctx, session.apiKey, session.model,
		[]llm.ChatMessage{{Role: "user", Content: "Reply with the single word: ok"}}, nil)
	if err != nil {
		return nil, mapLLMError(errinfo.PhaseSettings, session.providerID, err)
	}
	resp := llm.Normalize(raw)
	return map[string]any{
		"ok":          resp.Shape != llm.ShapeUnknown,
		"provider_id": session.providerID,
		"model":       session.model,
		"reply":       resp.Content,
	}, nil
}

// providerSession bundles everything one LLM call needs.
type providerSession struct {
	providerID string
	model      string
	apiKey     string
	transport  llm.Transport
}

func (e *Engine) resolveProvider(phase string) (providerSession, *errinfo.ErrorInfo) {
	cfg, err := e.settings.Load()
	if err != nil {
		return providerSession{}, errinfo.StorageFailed(phase, err.Error())
	}
	providerID, entry := cfg.Active()
	if providerID == "" {
		return providerSession{}, errinfo.ProviderNotConfigured(phase)
	}
	apiKey, err := e.secrets.GetProviderKey(providerID)
	if err != nil {
		return providerSession{}, errinfo.StorageFailed(phase, err.Error())
	}
	if apiKey == "" {
		info := errinfo.ProviderNotConfigured(phase)
		info.ProviderID = providerID
		return providerSession{}, info
	}
	return providerSession{
		providerID: providerID,
		model:      entry.Model,
		apiKey:     apiKey,
		transport:  e.transport(providerID, entry.BaseURL),
	}, nil
}
