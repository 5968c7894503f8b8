// Package notice turns operation outcomes into short user-facing texts.
package notice

import (
	"embed"
	"encoding/json"
	"errors"
	"sort"

	"cchat/internal/apperr"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Message ids.
const (
	NetworkUnreachable       = "network-unreachable"
	AuthExpired              = "auth-expired"
	UploadFailed             = "upload-failed"
	ValidationFailed         = "validation-failed"
	ServerError              = "server-error"
	SendFailed               = "send-failed"
	EditFailed               = "edit-failed"
	DeleteFailed             = "delete-failed"
	LoadFailed               = "load-failed"
	ConversationsFailed      = "conversations-failed"
	ConversationCreateFailed = "conversation-create-failed"
	GroupCreateFailed        = "group-create-failed"
	ConversationDeleteFailed = "conversation-delete-failed"
	ProfileUpdateFailed      = "profile-update-failed"
	ProfileUpdated           = "profile-updated"
	RegisterSucceeded        = "register-succeeded"
	LoginSucceeded           = "login-succeeded"
	LoggedOut                = "logged-out"
	OTPSent                  = "otp-sent"
	OTPVerified              = "otp-verified"
	PasswordReset            = "password-reset"
	Reconnected              = "reconnected"
	MessageSent              = "message-sent"
	UnknownUser              = "unknown-user"
	SayHi                    = "say-hi"
	Image                    = "image"
	ConversationsCount       = "conversations-count"
)

// Level tells the presenter how to show a notice.
type Level int

const (
	Info Level = iota
	Error
)

// Notice is a localized user-facing text.
type Notice struct {
	Level Level
	Kind  apperr.Kind
	Text  string
}

// Catalog localizes notices for one language.
type Catalog struct {
	localizer *i18n.Localizer
}

var bundle = loadBundle()

func loadBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, name := range []string{"en.json", "vi.json"} {
		buf, err := locales.ReadFile("locales/" + name)
		if err != nil {
			panic(err)
		}
		b.MustParseMessageFileBytes(buf, name)
	}
	return b
}

// New returns a catalog for lang, falling back to English.
func New(lang string) *Catalog {
	if lang != "" {
		return &Catalog{localizer: i18n.NewLocalizer(bundle, lang, "en")}
	}
	return &Catalog{localizer: i18n.NewLocalizer(bundle, "en")}
}

// Text localizes id with optional template data. Unknown ids return id.
func (c *Catalog) Text(id string, data map[string]any) string {
	s, err := c.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return s
}

// Plural localizes id with a plural count.
func (c *Catalog) Plural(id string, count int) string {
	s, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		return id
	}
	return s
}

// Info builds an informational notice.
func (c *Catalog) Info(id string, data map[string]any) Notice {
	return Notice{Level: Info, Text: c.Text(id, data)}
}

// ForError explains err to the user. fallback is the operation specific
// message used when the server gave no reason.
func (c *Catalog) ForError(err error, fallback string) Notice {
	n := Notice{Level: Error, Kind: apperr.KindOf(err)}

	var appErr *apperr.Error
	errors.As(err, &appErr)

	switch n.Kind {
	case apperr.KindNetworkUnreachable:
		n.Text = c.Text(NetworkUnreachable, nil)
	case apperr.KindAuthExpired:
		n.Text = c.Text(AuthExpired, nil)
	case apperr.KindUploadFailed:
		n.Text = c.Text(UploadFailed, nil)
	case apperr.KindValidationFailed:
		n.Text = firstField(appErr)
		if n.Text == "" {
			n.Text = c.Text(ValidationFailed, nil)
		}
	case apperr.KindServerRejected:
		if appErr != nil && appErr.Message != "" {
			n.Text = appErr.Message
		} else {
			n.Text = c.Text(fallback, nil)
		}
	default:
		n.Text = c.Text(fallback, nil)
	}
	return n
}

func firstField(e *apperr.Error) string {
	if e == nil || len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return e.Fields[keys[0]]
}
