package engine

import (
	"context"
	"errors"
	"net"

	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/llm"
)

func mapLLMError(phase, providerID string, err error) *errinfo.ErrorInfo {
	if errors.Is(err, llm.ErrNotConfigured) {
		info := errinfo.ProviderNotConfigured(phase)
		info.ProviderID = providerID
		return info
	}
	if errors.Is(err, llm.ErrUnauthorized) {
		info := errinfo.ProviderAuthFailed(phase)
		info.ProviderID = providerID
		return info
	}
	if errors.Is(err, llm.ErrRateLimited) {
		info := errinfo.ProviderRateLimited(phase, err.Error())
		info.ProviderID = providerID
		return info
	}
	if errors.Is(err, llm.ErrUnavailable) {
		info := errinfo.ProviderUnavailable(phase, err.Error())
		info.ProviderID = providerID
		return info
	}
	if errors.Is(err, context.Canceled) {
		info := errinfo.UserCanceled(phase, "run canceled")
		info.ProviderID = providerID
		return info
	}
	if errors.Is(err, context.DeadlineExceeded) {
		info := errinfo.NetworkUnavailable(phase, err.Error())
		info.ProviderID = providerID
		return info
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		info := errinfo.NetworkUnavailable(phase, err.Error())
		info.ProviderID = providerID
		return info
	}
	info := errinfo.ProviderUnavailable(phase, err.Error())
	info.ProviderID = providerID
	return info
}
