// Package callback implements the callbacks that archive engines drive while
// compressing and extracting: item properties, content streams, progress
// notifications and password prompts.
package callback

import (
	"github.com/pkg/errors"

	"github.com/mcdonaldj/arcbridge/internal/ports"
)

var (
	// ErrAborted is returned when a progress callback asks to stop.
	ErrAborted = errors.New("operation aborted")
	// ErrPasswordNotDefined is returned when an archive needs a password and
	// neither the handler nor its password callback supplies one.
	ErrPasswordNotDefined = errors.New("a password is required but none was defined")
	// ErrPathTraversal is returned for items whose path escapes the
	// destination directory.
	ErrPathTraversal = errors.New("item path escapes the destination directory")
)

// Handler holds the caller's settings shared by all callbacks of one
// operation. The callback fields are optional.
type Handler struct {
	password        string
	passwordDefined bool

	// TotalCallback receives the total number of bytes to process.
	TotalCallback func(total uint64)
	// ProgressCallback receives the number of bytes processed so far.
	// Returning false aborts the operation.
	ProgressCallback func(completed uint64) bool
	// RatioCallback receives compressed and uncompressed byte counts.
	RatioCallback func(inSize, outSize uint64)
	// FileCallback receives the name of each item as it is processed.
	FileCallback func(name string)
	// PasswordCallback is asked for a password when none is defined.
	PasswordCallback func() string
}

// NewHandler creates a handler with no password and no callbacks.
func NewHandler() *Handler {
	return &Handler{}
}

// SetPassword defines the password used for encrypted archives. An empty
// password clears it.
func (h *Handler) SetPassword(password string) {
	h.password = password
	h.passwordDefined = password != ""
}

// Password returns the defined password.
func (h *Handler) Password() string {
	return h.password
}

// IsPasswordDefined reports whether a password has been set.
func (h *Handler) IsPasswordDefined() bool {
	return h.passwordDefined
}

// ResolvePassword returns the defined password, falling back to
// PasswordCallback. It fails with ErrPasswordNotDefined when neither yields
// a password.
func (h *Handler) ResolvePassword() (string, error) {
	if h.passwordDefined {
		return h.password, nil
	}
	if h.PasswordCallback != nil {
		if password := h.PasswordCallback(); password != "" {
			return password, nil
		}
	}
	return "", ErrPasswordNotDefined
}

// Prompt adapts the handler to ports.PasswordProvider, for opening archives
// outside of an extract operation.
func (h *Handler) Prompt() ports.PasswordProvider {
	return prompt{handler: h}
}

type prompt struct {
	handler *Handler
}

func (p prompt) Password() (string, error) {
	return p.handler.ResolvePassword()
}

func (p prompt) PresetPassword() (string, bool) {
	return p.handler.password, p.handler.passwordDefined
}

func (h *Handler) notifyFile(name string) {
	if h.FileCallback != nil {
		h.FileCallback(name)
	}
}

// progress implements ports.ProgressCallback on top of a Handler.
type progress struct {
	handler *Handler
}

// SetTotal forwards the total to the handler's TotalCallback.
func (p progress) SetTotal(total uint64) {
	if p.handler.TotalCallback != nil {
		p.handler.TotalCallback(total)
	}
}

// SetCompleted forwards progress to the handler's ProgressCallback and returns
// ErrAborted if it asks to stop.
func (p progress) SetCompleted(completed uint64) error {
	if p.handler.ProgressCallback != nil && !p.handler.ProgressCallback(completed) {
		return ErrAborted
	}
	return nil
}
