// Package module exposes the bridge service as one table of named methods
// with JSON arguments and results, and adapts that table to the two call
// styles hosts use: promises (request/response frames) and success/error
// callback pairs.
package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

var (
	// ErrUnknownMethod is returned for method names outside the table.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrBadArguments wraps argument decoding failures.
	ErrBadArguments = errors.New("malformed arguments")
)

// Handler runs one method. A nil result is sent as JSON null.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Table maps method names to handlers over a Service.
type Table struct {
	svc     *service.Service
	methods map[string]Handler
	log     *slog.Logger
}

// New builds the method table of svc.
func New(svc *service.Service, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		svc: svc,
		log: logger.With("component", "module"),
	}
	t.methods = t.build()
	return t
}

// Names returns the sorted method names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs method with args and returns its JSON result.
func (t *Table) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	h, ok := t.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	res, err := h(ctx, args)
	if err != nil {
		t.log.Debug("method failed", "method", method, "error", err)
		return nil, err
	}
	if res == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding %s result: %w", method, err)
	}
	return data, nil
}

// Attach tells the service a JS context connected.
func (t *Table) Attach() { t.svc.AttachContext() }

// Detach tells the service the JS context is gone.
func (t *Table) Detach() { t.svc.DetachContext() }

// decode unmarshals args into a T. Absent args decode to the zero value.
func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 || string(args) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return v, nil
}

// with adapts a typed handler.
func with[T any](fn func(ctx context.Context, a T) (any, error)) Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decode[T](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// noArgs adapts a handler that takes nothing.
func noArgs(fn func(ctx context.Context) (any, error)) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return fn(ctx)
	}
}

// done adapts an error-only result.
func done(err error) (any, error) { return nil, err }

func (t *Table) build() map[string]Handler {
	s := t.svc
	return map[string]Handler{
		protocol.MethodInit: with(func(ctx context.Context, cfg *config.Configuration) (any, error) {
			return done(s.Init(ctx, cfg))
		}),
		protocol.MethodAddListener: with(func(ctx context.Context, a ListenerArgs) (any, error) {
			if a.Event == "" {
				return nil, fmt.Errorf("%w: event is required", ErrBadArguments)
			}
			return s.AddListener(ctx, a.Event)
		}),
		protocol.MethodRemoveListeners: noArgs(func(context.Context) (any, error) {
			return nil, nil
		}),

		protocol.MethodSaveUser: with(func(ctx context.Context, u sdk.User) (any, error) {
			return s.SaveUser(ctx, u)
		}),
		protocol.MethodFetchUser: noArgs(func(ctx context.Context) (any, error) {
			return s.FetchUser(ctx)
		}),
		protocol.MethodGetUser: noArgs(func(ctx context.Context) (any, error) {
			return s.GetUser(ctx)
		}),
		protocol.MethodSaveInstallation: with(func(ctx context.Context, inst sdk.Installation) (any, error) {
			return s.SaveInstallation(ctx, inst)
		}),
		protocol.MethodFetchInstallation: noArgs(func(ctx context.Context) (any, error) {
			return s.FetchInstallation(ctx)
		}),
		protocol.MethodGetInstallation: noArgs(func(ctx context.Context) (any, error) {
			return s.GetInstallation(ctx)
		}),
		protocol.MethodSetInstallationAsPrimary: with(func(ctx context.Context, a InstallationArgs) (any, error) {
			return s.SetInstallationAsPrimary(ctx, a.PushRegistrationID, a.Primary)
		}),
		protocol.MethodDepersonalizeInstallation: with(func(ctx context.Context, a InstallationArgs) (any, error) {
			return s.DepersonalizeInstallation(ctx, a.PushRegistrationID)
		}),
		protocol.MethodPersonalize: with(func(ctx context.Context, pc sdk.PersonalizeContext) (any, error) {
			return s.Personalize(ctx, pc)
		}),
		protocol.MethodDepersonalize: noArgs(func(ctx context.Context) (any, error) {
			return s.Depersonalize(ctx)
		}),
		protocol.MethodMarkMessagesSeen: with(func(ctx context.Context, a MessageIDsArgs) (any, error) {
			return s.MarkMessagesSeen(ctx, a.MessageIDs)
		}),
		protocol.MethodSubmitEvent: with(func(ctx context.Context, ev sdk.CustomEvent) (any, error) {
			return done(s.SubmitEvent(ctx, ev))
		}),
		protocol.MethodSubmitEventImmediately: with(func(ctx context.Context, ev sdk.CustomEvent) (any, error) {
			return done(s.SubmitEventImmediately(ctx, ev))
		}),
		protocol.MethodFetchInboxMessages: with(func(ctx context.Context, a InboxArgs) (any, error) {
			return s.FetchInboxMessages(ctx, a.Token, a.ExternalUserID, a.Filter)
		}),
		protocol.MethodFetchInboxMessagesWithoutToken: with(func(ctx context.Context, a InboxArgs) (any, error) {
			return s.FetchInboxMessagesWithoutToken(ctx, a.ExternalUserID, a.Filter)
		}),
		protocol.MethodSetInboxMessagesSeen: with(func(ctx context.Context, a InboxSeenArgs) (any, error) {
			return s.SetInboxMessagesSeen(ctx, a.ExternalUserID, a.MessageIDs)
		}),
		protocol.MethodShowDialogForError: with(func(ctx context.Context, a DialogArgs) (any, error) {
			return done(s.ShowDialogForError(ctx, a.Code))
		}),

		protocol.MethodDefaultStorageFind: with(func(ctx context.Context, a MessageIDArgs) (any, error) {
			return s.DefaultStorageFind(ctx, a.MessageID)
		}),
		protocol.MethodDefaultStorageFindAll: noArgs(func(ctx context.Context) (any, error) {
			return s.DefaultStorageFindAll(ctx)
		}),
		protocol.MethodDefaultStorageDelete: with(func(ctx context.Context, a MessageIDArgs) (any, error) {
			return done(s.DefaultStorageDelete(ctx, a.MessageID))
		}),
		protocol.MethodDefaultStorageDeleteAll: noArgs(func(ctx context.Context) (any, error) {
			return done(s.DefaultStorageDeleteAll(ctx))
		}),

		protocol.MethodProvideFindResult: with(func(_ context.Context, a ResultArgs) (any, error) {
			return done(s.ProvideFindResult(a.Result))
		}),
		protocol.MethodProvideFindAllResult: with(func(_ context.Context, a ResultArgs) (any, error) {
			return done(s.ProvideFindAllResult(a.Result))
		}),

		protocol.MethodShowChat: with(func(ctx context.Context, opts map[string]any) (any, error) {
			return done(s.ShowChat(ctx, opts))
		}),
		protocol.MethodShowThreadsList: noArgs(func(ctx context.Context) (any, error) {
			return done(s.ShowThreadsList(ctx))
		}),
		protocol.MethodSetChatCustomization: with(func(ctx context.Context, c map[string]any) (any, error) {
			return done(s.SetChatCustomization(ctx, c))
		}),
		protocol.MethodSetWidgetTheme: with(func(ctx context.Context, a ThemeArgs) (any, error) {
			return done(s.SetWidgetTheme(ctx, a.Theme))
		}),
		protocol.MethodSetLanguage: with(func(ctx context.Context, a LanguageArgs) (any, error) {
			return done(s.SetLanguage(ctx, a.Language))
		}),
		protocol.MethodSendContextualData: with(func(ctx context.Context, a ContextualDataArgs) (any, error) {
			return done(s.SendContextualData(ctx, a.Data, a.Strategy))
		}),
		protocol.MethodGetMessageCounter: noArgs(func(ctx context.Context) (any, error) {
			return s.GetMessageCounter(ctx)
		}),
		protocol.MethodResetMessageCounter: noArgs(func(ctx context.Context) (any, error) {
			return done(s.ResetMessageCounter(ctx))
		}),
		protocol.MethodSetJwtProvider: with(func(_ context.Context, a EnabledArgs) (any, error) {
			return done(s.SetJwtProvider(a.Enabled))
		}),
		protocol.MethodSetJwt: with(func(_ context.Context, a JwtArgs) (any, error) {
			return done(s.SetJwt(a.Token))
		}),
		protocol.MethodSetJwtError: with(func(_ context.Context, a JwtErrorArgs) (any, error) {
			return done(s.SetJwtError(a.Message))
		}),
		protocol.MethodSetChatExceptionHandler: with(func(_ context.Context, a EnabledArgs) (any, error) {
			return done(s.SetChatExceptionHandler(a.Enabled))
		}),

		protocol.MethodCallsAvailable: noArgs(func(context.Context) (any, error) {
			return s.CallsAvailable(), nil
		}),
		protocol.MethodEnableCalls: with(func(ctx context.Context, a IdentityArgs) (any, error) {
			return done(s.EnableCalls(ctx, a.Identity))
		}),
		protocol.MethodEnableChatCalls: noArgs(func(ctx context.Context) (any, error) {
			return done(s.EnableChatCalls(ctx))
		}),
		protocol.MethodDisableCalls: noArgs(func(ctx context.Context) (any, error) {
			return done(s.DisableCalls(ctx))
		}),
	}
}
