package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
)

// AvatarStore writes the uploaded object's path back to the user record.
type AvatarStore interface {
	UpdateAvatarPath(ctx context.Context, publicID, path string) error
}

type AvatarUploader struct {
	client    *minio.Client
	bucket    string
	domainURL string
	users     AvatarStore
}

func NewAvatarUploader(client *minio.Client, bucket, domainURL string, users AvatarStore) *AvatarUploader {
	return &AvatarUploader{client: client, bucket: bucket, domainURL: domainURL, users: users}
}

// HandleAvatarUpload stores the avatar bytes in the bucket and records the
// public path on the user.
func (u *AvatarUploader) HandleAvatarUpload(ctx context.Context, t *asynq.Task) error {
	var payload AvatarUploadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", TypeAvatarUpload, err)
	}

	objectName := path.Join("avatars", payload.UserID, payload.Filename)
	contentType := http.DetectContentType(payload.Data)

	_, err := u.client.PutObject(
		ctx,
		u.bucket,
		objectName,
		bytes.NewReader(payload.Data),
		int64(len(payload.Data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("upload avatar %s: %w", objectName, err)
	}

	avatarPath := u.domainURL + "/" + objectName
	if err := u.users.UpdateAvatarPath(ctx, payload.UserID, avatarPath); err != nil {
		return fmt.Errorf("record avatar path for user %s: %w", payload.UserID, err)
	}

	log.Printf("Avatar stored for user %s at %s", payload.UserID, avatarPath)
	return nil
}
