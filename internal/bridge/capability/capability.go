// Package capability implements the native capabilities a micro-app can
// reach through the bridge, one handler per topic, and assembles them into
// the router's route table.
package capability

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
	"github.com/GriffinCanCode/minihost/backend/internal/bridge/router"
)

var (
	// ErrInvalidPayload rejects envelopes whose data is missing required
	// fields or has the wrong shape.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrPermissionDenied rejects file capabilities for apps without file
	// access.
	ErrPermissionDenied = errors.New("permission denied: file access is not granted to this app")
)

// Credentials hands out the session credential.
type Credentials interface {
	Request(ctx context.Context) (string, error)
}

// Storage is the namespaced key/value gateway of the session.
type Storage interface {
	Save(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// Prompter shows interactive native UI.
type Prompter interface {
	Alert(ctx context.Context, alert Alert) error
	// Confirm reports true when the user chose the confirm button.
	Confirm(ctx context.Context, confirm Confirm) (bool, error)
	ScanQR(ctx context.Context) (string, error)
}

// Files performs file transfers for a storage namespace.
type Files interface {
	Download(ctx context.Context, namespace string, file Download) (string, error)
	Upload(ctx context.Context, namespace string) error
}

// Permissions are the capability flags declared for a micro-app.
type Permissions struct {
	FileAccess bool `json:"fileAccess" yaml:"fileAccess"`
}

// Alert is a message with a single dismiss button.
type Alert struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	ButtonText string `json:"buttonText"`
}

// Confirm is a question with cancel and confirm buttons.
type Confirm struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	CancelText  string `json:"cancelText"`
	ConfirmText string `json:"confirmText"`
}

// Download is a file the micro-app asked to save.
type Download struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Deps are the collaborators the handlers act through.
type Deps struct {
	Credentials Credentials
	Storage     Storage
	Prompter    Prompter
	Files       Files
	Permissions Permissions
	// Namespace is the storage namespace of the app; file transfers are
	// scoped to it.
	Namespace string
	Logger    *zap.Logger
}

// Timeouts bound each kind of request.
type Timeouts struct {
	Request    time.Duration
	Prompt     time.Duration
	Credential time.Duration
}

// Routes builds the fixed route table for a session.
func Routes(deps Deps, timeouts Timeouts) []router.Route {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{deps: deps, logger: logger.Named("capability")}

	return []router.Route{
		{
			Topic:   envelope.TopicToken,
			Handler: router.HandlerFunc(h.token),
			Resolve: envelope.ResolveToken,
			Reject:  envelope.RejectToken,
			Timeout: timeouts.Credential,
		},
		{
			Topic:   envelope.TopicQRRequest,
			Handler: router.HandlerFunc(h.scanQR),
			Resolve: envelope.ResolveQRCode,
			Reject:  envelope.RejectQRCode,
			Timeout: timeouts.Prompt,
		},
		{
			Topic:   envelope.TopicSaveData,
			Handler: router.HandlerFunc(h.save),
			Resolve: envelope.ResolveSaveData,
			Reject:  envelope.RejectSaveData,
			Timeout: timeouts.Request,
		},
		{
			Topic:   envelope.TopicGetData,
			Handler: router.HandlerFunc(h.get),
			Resolve: envelope.ResolveGetData,
			Reject:  envelope.RejectGetData,
			Timeout: timeouts.Request,
		},
		{
			Topic:   envelope.TopicAlert,
			Handler: router.HandlerFunc(h.alert),
			Reject:  envelope.RejectAlert,
			Timeout: timeouts.Prompt,
		},
		{
			Topic:   envelope.TopicConfirmAlert,
			Handler: router.HandlerFunc(h.confirm),
			Resolve: envelope.ResolveConfirmAlert,
			Reject:  envelope.RejectConfirmAlert,
			Timeout: timeouts.Prompt,
		},
		{
			Topic:   envelope.TopicDownload,
			Handler: router.HandlerFunc(h.download),
			Resolve: envelope.ResolveDownload,
			Reject:  envelope.RejectDownload,
			Timeout: timeouts.Request,
		},
		{
			Topic:   envelope.TopicUpload,
			Handler: router.HandlerFunc(h.upload),
			Resolve: envelope.ResolveUpload,
			Reject:  envelope.RejectUpload,
			Timeout: timeouts.Prompt,
		},
	}
}
