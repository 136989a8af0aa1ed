package tasks

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"hexmatch/models"
)

const (
	TypeMatchEmail   = "email:match"
	TypeAvatarUpload = "avatar:upload"
)

type MatchEmailPayload struct {
	ToEmail      string `json:"to_email"`
	ToName       string `json:"to_name"`
	MatchedName  string `json:"matched_name"`
	MatchedEmail string `json:"matched_email"`
}

type AvatarUploadPayload struct {
	UserID   string `json:"user_id"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Enqueuer hands work to the background worker. Request handlers never wait
// on delivery.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// NotifyMatch queues one email per matched side.
func (e *Enqueuer) NotifyMatch(ctx context.Context, a, b models.User) error {
	pairs := []MatchEmailPayload{
		{ToEmail: a.Email, ToName: a.FirstName, MatchedName: b.FirstName, MatchedEmail: b.Email},
		{ToEmail: b.Email, ToName: b.FirstName, MatchedName: a.FirstName, MatchedEmail: a.Email},
	}
	for _, payload := range pairs {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := e.client.EnqueueContext(ctx, asynq.NewTask(TypeMatchEmail, body), asynq.MaxRetry(3)); err != nil {
			return err
		}
	}
	return nil
}

// UploadAvatar queues the avatar object upload for a freshly registered user.
func (e *Enqueuer) UploadAvatar(ctx context.Context, userID, filename string, data []byte) error {
	body, err := json.Marshal(AvatarUploadPayload{UserID: userID, Filename: filename, Data: data})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TypeAvatarUpload, body), asynq.MaxRetry(3))
	return err
}

// NewWorkerMux binds every task type to its handler.
func NewWorkerMux(mailer *Mailer, uploader *AvatarUploader) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMatchEmail, mailer.HandleMatchEmail)
	mux.HandleFunc(TypeAvatarUpload, uploader.HandleAvatarUpload)
	return mux
}
