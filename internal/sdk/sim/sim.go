// Package sim is an in-memory stand-in for the native Mobile Messaging SDK.
// It keeps user, installation and message state, raises the broadcasts a
// real SDK would, and lets tests and `mmbridge serve` drive pushes, taps
// and chat activity by hand.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/sdk"
)

// Error domain used for simulated native failures.
const Domain = "com.infobip.mobile.messaging.sim"

// ErrNotInitialized is returned by calls made before Init.
var ErrNotInitialized = &sdk.Error{Code: "NOT_INITIALIZED", Description: "SDK is not initialized", Domain: Domain}

// SDK is the simulator. The zero value is not usable; call New.
type SDK struct {
	*sdk.Broadcaster

	platform string
	log      *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	cfg          *config.Configuration
	store        sdk.MessageStore
	user         sdk.User
	installation sdk.Installation
	messages     map[string]sdk.Message
	inbox        []sdk.Message
	events       []sdk.CustomEvent
	unread       int
	language     string
	theme        string
	contextual   []string
	chatShown    int
	callsEnabled bool
	jwt          sdk.JwtProvider
	onException  sdk.ExceptionHandler
}

var (
	_ sdk.Messaging       = (*SDK)(nil)
	_ sdk.Chat            = (*SDK)(nil)
	_ sdk.DefaultStorage  = (*SDK)(nil)
	_ sdk.WebRTC          = (*SDK)(nil)
	_ sdk.BroadcastSource = (*SDK)(nil)
)

// New returns a simulator raising broadcasts with platform's identifiers.
func New(platform string, logger *slog.Logger) *SDK {
	if logger == nil {
		logger = slog.Default()
	}
	return &SDK{
		Broadcaster: sdk.NewBroadcaster(),
		platform:    platform,
		log:         logger.With("component", "sim"),
		now:         time.Now,
		messages:    make(map[string]sdk.Message),
	}
}

func (s *SDK) raise(k sdk.Kind, extras map[string]any) {
	action := sdk.ActionFor(s.platform, k)
	if action == "" {
		s.log.Warn("no native identifier for event kind", "kind", k, "platform", s.platform)
		return
	}
	n := s.Send(sdk.Broadcast{Action: action, Extras: extras})
	s.log.Debug("broadcast raised", "action", action, "receivers", n)
}

func (s *SDK) requireInit() (*config.Configuration, error) {
	if s.cfg == nil {
		return nil, ErrNotInitialized
	}
	return s.cfg, nil
}

// Init accepts the configuration, starts the custom store and registers
// the installation, raising the token and registration broadcasts.
func (s *SDK) Init(_ context.Context, cfg *config.Configuration, store sdk.MessageStore) error {
	if cfg == nil {
		return &sdk.Error{Code: "INVALID_CONFIGURATION", Description: "configuration is required", Domain: Domain}
	}
	if err := cfg.Validate(); err != nil {
		return &sdk.Error{Code: "INVALID_CONFIGURATION", Description: err.Error(), Domain: Domain}
	}

	s.mu.Lock()
	first := s.installation.PushRegistrationID == ""
	s.cfg = cfg.Clone()
	s.store = store
	if first {
		s.installation = sdk.Installation{
			PushRegistrationID:        uuid.NewString(),
			IsPushRegistrationEnabled: true,
			NotificationsEnabled:      true,
			GeoEnabled:                cfg.GeofencingEnabled,
			SDKVersion:                "sim",
			OS:                        s.platform,
			DeviceModel:               "simulator",
		}
	}
	inst := s.installation
	s.mu.Unlock()

	if store != nil {
		store.Start()
	}
	if first {
		s.raise(sdk.KindTokenReceived, map[string]any{sdk.ExtraRegistrationID: "sim-token-" + inst.PushRegistrationID[:8]})
		s.raise(sdk.KindRegistrationUpdated, map[string]any{sdk.ExtraRegistrationID: inst.PushRegistrationID})
	}
	if cfg.InAppChatEnabled {
		s.raise(sdk.KindChatAvailabilityUpdated, map[string]any{sdk.ExtraChatAvailable: true})
	}
	return nil
}

// Shutdown stops the custom store, as the SDK does when the app is torn down.
func (s *SDK) Shutdown() {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()
	if store != nil {
		store.Stop()
	}
}

func (s *SDK) SaveUser(_ context.Context, user sdk.User) (sdk.User, error) {
	s.mu.Lock()
	if _, err := s.requireInit(); err != nil {
		s.mu.Unlock()
		return sdk.User{}, err
	}
	s.user = mergeUser(s.user, user)
	out := s.user
	s.mu.Unlock()

	s.raise(sdk.KindUserUpdated, map[string]any{sdk.ExtraUser: out})
	return out, nil
}

func (s *SDK) FetchUser(ctx context.Context) (sdk.User, error) {
	return s.GetUser(ctx)
}

func (s *SDK) GetUser(context.Context) (sdk.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return sdk.User{}, err
	}
	return s.user, nil
}

func (s *SDK) SaveInstallation(_ context.Context, inst sdk.Installation) (sdk.Installation, error) {
	s.mu.Lock()
	if _, err := s.requireInit(); err != nil {
		s.mu.Unlock()
		return sdk.Installation{}, err
	}
	inst.PushRegistrationID = s.installation.PushRegistrationID
	if inst.SDKVersion == "" {
		inst.SDKVersion = s.installation.SDKVersion
	}
	s.installation = inst
	s.mu.Unlock()

	s.raise(sdk.KindInstallationUpdated, map[string]any{sdk.ExtraInstallation: inst})
	return inst, nil
}

func (s *SDK) FetchInstallation(ctx context.Context) (sdk.Installation, error) {
	return s.GetInstallation(ctx)
}

func (s *SDK) GetInstallation(context.Context) (sdk.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return sdk.Installation{}, err
	}
	return s.installation, nil
}

func (s *SDK) SetInstallationAsPrimary(_ context.Context, pushRegistrationID string, primary bool) ([]sdk.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return nil, err
	}
	if pushRegistrationID != s.installation.PushRegistrationID {
		return nil, &sdk.Error{Code: "INSTALLATION_NOT_FOUND", Description: fmt.Sprintf("unknown installation %q", pushRegistrationID), Domain: Domain}
	}
	s.installation.IsPrimaryDevice = primary
	return []sdk.Installation{s.installation}, nil
}

func (s *SDK) DepersonalizeInstallation(_ context.Context, pushRegistrationID string) ([]sdk.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return nil, err
	}
	if pushRegistrationID == s.installation.PushRegistrationID {
		return nil, &sdk.Error{Code: "CANNOT_DEPERSONALIZE_SELF", Description: "use depersonalize for the current installation", Domain: Domain}
	}
	return []sdk.Installation{s.installation}, nil
}

func (s *SDK) Personalize(_ context.Context, pc sdk.PersonalizeContext) (sdk.User, error) {
	if err := pc.Validate(); err != nil {
		return sdk.User{}, &sdk.Error{Code: "INVALID_IDENTITY", Description: err.Error(), Domain: Domain}
	}

	s.mu.Lock()
	if _, err := s.requireInit(); err != nil {
		s.mu.Unlock()
		return sdk.User{}, err
	}
	if s.user.ExternalUserID != "" && pc.UserIdentity.ExternalUserID != "" &&
		s.user.ExternalUserID != pc.UserIdentity.ExternalUserID && !pc.ForceDepersonalize {
		s.mu.Unlock()
		return sdk.User{}, &sdk.Error{Code: "AMBIGUOUS_PERSONALIZE_CANDIDATES", Description: "installation is personalized with another user", Domain: Domain}
	}
	u := sdk.User{
		ExternalUserID: pc.UserIdentity.ExternalUserID,
		Phones:         append([]string(nil), pc.UserIdentity.Phones...),
		Emails:         append([]string(nil), pc.UserIdentity.Emails...),
	}
	applyAttributes(&u, pc.UserAttributes)
	if pc.KeepAsLead {
		u.Type = "LEAD"
	} else {
		u.Type = "CUSTOMER"
	}
	s.user = u
	s.mu.Unlock()

	s.raise(sdk.KindPersonalized, map[string]any{sdk.ExtraUser: u})
	return u, nil
}

func (s *SDK) Depersonalize(context.Context) (string, error) {
	s.mu.Lock()
	if _, err := s.requireInit(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.user = sdk.User{}
	s.mu.Unlock()

	s.raise(sdk.KindDepersonalized, nil)
	return sdk.DepersonalizeSuccess, nil
}

func (s *SDK) MarkMessagesSeen(_ context.Context, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return nil, err
	}
	ts := s.now().UnixMilli()
	for _, id := range messageIDs {
		if m, ok := s.messages[id]; ok {
			m.Seen = true
			m.SeenDate = ts
			s.messages[id] = m
		}
	}
	return append([]string(nil), messageIDs...), nil
}

func (s *SDK) SubmitEvent(_ context.Context, ev sdk.CustomEvent) error {
	if err := ev.Validate(); err != nil {
		return &sdk.Error{Code: "INVALID_EVENT", Description: err.Error(), Domain: Domain}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *SDK) SubmitEventImmediately(ctx context.Context, ev sdk.CustomEvent) error {
	return s.SubmitEvent(ctx, ev)
}

func (s *SDK) FetchInboxMessages(ctx context.Context, token, externalUserID string, filter sdk.InboxFilter) (sdk.Inbox, error) {
	if token == "" {
		return sdk.Inbox{}, &sdk.Error{Code: "UNAUTHORIZED", Description: "inbox token is required", Domain: Domain}
	}
	return s.FetchInboxMessagesWithoutToken(ctx, externalUserID, filter)
}

func (s *SDK) FetchInboxMessagesWithoutToken(_ context.Context, externalUserID string, filter sdk.InboxFilter) (sdk.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return sdk.Inbox{}, err
	}
	if externalUserID == "" || externalUserID != s.user.ExternalUserID {
		return sdk.Inbox{}, &sdk.Error{Code: "USER_NOT_FOUND", Description: "no inbox for external user", Domain: Domain}
	}

	inbox := sdk.Inbox{CountTotal: len(s.inbox)}
	var filtered []sdk.Message
	for _, m := range s.inbox {
		if !m.Seen {
			inbox.CountUnread++
		}
		if matchesTopic(m, filter) {
			filtered = append(filtered, m)
		}
	}
	if filter.Topic != "" || len(filter.Topics) > 0 {
		total, unread := len(filtered), 0
		for _, m := range filtered {
			if !m.Seen {
				unread++
			}
		}
		inbox.CountTotalFiltered = &total
		inbox.CountUnreadFiltered = &unread
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	inbox.Messages = filtered
	return inbox, nil
}

func (s *SDK) SetInboxMessagesSeen(_ context.Context, externalUserID string, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireInit(); err != nil {
		return nil, err
	}
	if externalUserID != s.user.ExternalUserID {
		return nil, &sdk.Error{Code: "USER_NOT_FOUND", Description: "no inbox for external user", Domain: Domain}
	}
	seen := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		seen[id] = true
	}
	for i := range s.inbox {
		if seen[s.inbox[i].MessageID] {
			s.inbox[i].Seen = true
		}
	}
	return append([]string(nil), messageIDs...), nil
}

func (s *SDK) ShowDialogForError(_ context.Context, code int) error {
	s.log.Info("error dialog shown", "code", code)
	return nil
}

func mergeUser(dst, src sdk.User) sdk.User {
	if src.ExternalUserID != "" {
		dst.ExternalUserID = src.ExternalUserID
	}
	if src.FirstName != "" {
		dst.FirstName = src.FirstName
	}
	if src.LastName != "" {
		dst.LastName = src.LastName
	}
	if src.MiddleName != "" {
		dst.MiddleName = src.MiddleName
	}
	if src.Gender != "" {
		dst.Gender = src.Gender
	}
	if src.Birthday != "" {
		dst.Birthday = src.Birthday
	}
	if src.Phones != nil {
		dst.Phones = src.Phones
	}
	if src.Emails != nil {
		dst.Emails = src.Emails
	}
	if src.Tags != nil {
		dst.Tags = src.Tags
	}
	if src.CustomAttributes != nil {
		if dst.CustomAttributes == nil {
			dst.CustomAttributes = make(map[string]any)
		}
		for k, v := range src.CustomAttributes {
			dst.CustomAttributes[k] = v
		}
	}
	return dst
}

func applyAttributes(u *sdk.User, attrs map[string]any) {
	for k, v := range attrs {
		str, _ := v.(string)
		switch k {
		case "firstName":
			u.FirstName = str
		case "lastName":
			u.LastName = str
		case "middleName":
			u.MiddleName = str
		case "gender":
			u.Gender = str
		case "birthday":
			u.Birthday = str
		default:
			if u.CustomAttributes == nil {
				u.CustomAttributes = make(map[string]any)
			}
			u.CustomAttributes[k] = v
		}
	}
}

func matchesTopic(m sdk.Message, f sdk.InboxFilter) bool {
	if f.Topic == "" && len(f.Topics) == 0 {
		return true
	}
	if f.Topic != "" && strings.EqualFold(m.Topic, f.Topic) {
		return true
	}
	for _, t := range f.Topics {
		if strings.EqualFold(m.Topic, t) {
			return true
		}
	}
	return false
}

// sortedMessages returns the default-storage contents oldest first.
func sortedMessages(msgs map[string]sdk.Message) []sdk.Message {
	out := make([]sdk.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedTimestamp != out[j].ReceivedTimestamp {
			return out[i].ReceivedTimestamp < out[j].ReceivedTimestamp
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

var errNoStorage = errors.New("default message storage is disabled")
