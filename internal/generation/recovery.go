package generation

import (
	"context"

	"shivuk/internal/credentials"
	"shivuk/internal/services"
)

// Action is the follow-up offered next to a failure message.
type Action string

const (
	ActionNone Action = ""
	// ActionSelectKey asks the person to pick or refresh the API key.
	ActionSelectKey Action = "select_key"
	ActionRetry     Action = "retry"
)

// Recovery describes how to present a failed Start.
type Recovery struct {
	Kind    services.Kind
	Message string
	Action  Action
}

// Recovery maps err to a message and follow-up action. Quota and credential
// failures offer a key change only when the host can prompt for one.
func (s *Session) Recovery(err error) Recovery {
	kind := services.Classify(err)
	r := Recovery{Kind: kind, Message: services.UserMessage(err)}
	switch kind {
	case services.KindQuota, services.KindConfiguration:
		if credentials.Interactive(s.credentials) {
			r.Action = ActionSelectKey
		}
	case services.KindTransient:
		r.Action = ActionRetry
	}
	return r
}

// RequestCredential asks the host for a new credential.
func (s *Session) RequestCredential(ctx context.Context) error {
	return s.credentials.RequestCredential(ctx)
}
