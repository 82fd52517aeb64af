package module

import (
	"context"
	"errors"

	"github.com/kuuji/mmbridge/internal/calls"
	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/jwtqueue"
	"github.com/kuuji/mmbridge/internal/msgstorage"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

var codes = []struct {
	err  error
	code string
}{
	{service.ErrNotInitialized, protocol.CodeNotInitialized},
	{service.ErrDestroyed, protocol.CodeDestroyed},
	{service.ErrDefaultStorageDisabled, protocol.CodeDefaultStorageDisabled},
	{service.ErrInvalidArgument, protocol.CodeInvalidArgument},
	{service.ErrChatUnavailable, protocol.CodeChatUnavailable},
	{ErrBadArguments, protocol.CodeInvalidArgument},
	{ErrUnknownMethod, protocol.CodeUnknownMethod},
	{jwtqueue.ErrNoPendingRequest, protocol.CodeNoPendingRequest},
	{msgstorage.ErrNoPendingRequest, protocol.CodeNoPendingRequest},
	{calls.ErrCallsUnavailable, protocol.CodeCallsUnavailable},
	{calls.ErrNotConfigured, protocol.CodeCallsNotConfigured},
	{eventcache.ErrNoContext, protocol.CodeNoContext},
	{context.DeadlineExceeded, protocol.CodeTimeout},
}

// ToPayload converts err into the error shape JS receives. Native errors
// keep their code and domain; bridge errors get a bridge code.
func ToPayload(err error) *protocol.ErrorPayload {
	if err == nil {
		return nil
	}

	var native *sdk.Error
	if errors.As(err, &native) {
		return &protocol.ErrorPayload{Code: native.Code, Description: native.Description, Domain: native.Domain}
	}
	var payload *protocol.ErrorPayload
	if errors.As(err, &payload) {
		return payload
	}
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return &protocol.ErrorPayload{Code: protocol.CodeInvalidConfiguration, Description: verr.Error(), Domain: protocol.Domain}
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return &protocol.ErrorPayload{Code: c.code, Description: err.Error(), Domain: protocol.Domain}
		}
	}
	return &protocol.ErrorPayload{Code: protocol.CodeInternal, Description: err.Error(), Domain: protocol.Domain}
}
