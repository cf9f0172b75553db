package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	credentialspb "cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"rallyup/backend/internal/authctx"
	"rallyup/backend/internal/config"
	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/httpjson"
)

const (
	defaultExpiry = 900 * time.Second
	maxExpiry     = 3600 * time.Second
)

var avatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// BlobSigner signs payload as the given service account.
type BlobSigner func(ctx context.Context, serviceAccount string, payload []byte) ([]byte, error)

// IAMSigner signs through the IAM Credentials API.
func IAMSigner(c *credentials.IamCredentialsClient) BlobSigner {
	return func(ctx context.Context, serviceAccount string, payload []byte) ([]byte, error) {
		resp, err := c.SignBlob(ctx, &credentialspb.SignBlobRequest{
			Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", serviceAccount),
			Payload: payload,
		})
		if err != nil {
			return nil, err
		}
		return resp.SignedBlob, nil
	}
}

// ObjectStat reports whether object exists in bucket. storage.ErrObjectNotExist
// means it does not.
type ObjectStat func(ctx context.Context, bucket, object string) error

// StorageStat looks objects up through the Cloud Storage client.
func StorageStat(c *storage.Client) ObjectStat {
	return func(ctx context.Context, bucket, object string) error {
		_, err := c.Bucket(bucket).Object(object).Attrs(ctx)
		return err
	}
}

// Uploads issues V4 signed PUT URLs for profile pictures.
type Uploads struct {
	bucket         string
	serviceAccount string
	sign           BlobSigner
	stat           ObjectStat
	log            *slog.Logger
}

func NewUploads(cfg config.Config, sign BlobSigner, log *slog.Logger) *Uploads {
	if log == nil {
		log = slog.Default()
	}
	return &Uploads{
		bucket:         cfg.StorageBucket,
		serviceAccount: cfg.SignedURLServiceAccountEmail,
		sign:           sign,
		log:            log,
	}
}

func (h *Uploads) SetObjectStat(stat ObjectStat) {
	h.stat = stat
}

// VerifyAvatar checks that object is one of uid's avatar uploads and, when
// an ObjectStat is set, that the upload finished.
func (h *Uploads) VerifyAvatar(ctx context.Context, uid, object string) error {
	if !strings.HasPrefix(object, fmt.Sprintf("users/%s/avatar/", uid)) || strings.Contains(object, "..") {
		return fmt.Errorf("%w: profileImage must be an avatar upload of the caller", domain.ErrBadRequest)
	}
	if h.stat == nil || h.bucket == "" {
		return nil
	}
	err := h.stat(ctx, h.bucket, object)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%w: profileImage %s has not been uploaded", domain.ErrBadRequest, object)
	case err != nil:
		h.log.Warn("handlers: avatar lookup failed", "uid", uid, "object", object, "error", err)
		return domain.ReadErr(err, "avatar %s", object)
	}
	return nil
}

type avatarURLReq struct {
	ContentType    string `json:"contentType"`
	ExpiresSeconds int64  `json:"expiresSeconds,omitempty"` // default 900
}

type signedURLResp struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	ObjectPath string            `json:"objectPath"`
	Headers    map[string]string `json:"headers"`
	ExpiresAt  int64             `json:"expiresAt"`
}

// CreateAvatarUploadURL returns a URL the caller can PUT an image to under
// users/{uid}/avatar/. The object path is then stored as profileImage.
func (h *Uploads) CreateAvatarUploadURL(w http.ResponseWriter, r *http.Request) {
	p, ok := authctx.From(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req avatarURLReq
	if err := httpjson.Read(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	ct := strings.ToLower(strings.TrimSpace(req.ContentType))
	ext, ok := avatarTypes[ct]
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "contentType must be image/jpeg, image/png, image/webp or image/heic")
		return
	}

	object := fmt.Sprintf("users/%s/avatar/%s%s", p.UID, uuid.NewString(), ext)
	url, exp, err := h.signedURL(r.Context(), object, ct, time.Duration(req.ExpiresSeconds)*time.Second)
	if err != nil {
		h.log.Error("handlers: sign avatar url", "uid", p.UID, "error", err)
		httpjson.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, signedURLResp{
		URL:        url,
		Method:     http.MethodPut,
		ObjectPath: object,
		Headers:    map[string]string{"Content-Type": ct},
		ExpiresAt:  exp.Unix(),
	})
}

func (h *Uploads) signedURL(ctx context.Context, object, contentType string, expiry time.Duration) (string, time.Time, error) {
	if h.bucket == "" {
		return "", time.Time{}, fmt.Errorf("FIREBASE_STORAGE_BUCKET is not set")
	}
	if h.serviceAccount == "" {
		return "", time.Time{}, fmt.Errorf("SIGNED_URL_SERVICE_ACCOUNT_EMAIL is not set")
	}
	if h.sign == nil {
		return "", time.Time{}, fmt.Errorf("IAM credentials client not available")
	}
	if expiry <= 0 || expiry > maxExpiry {
		expiry = defaultExpiry
	}
	exp := time.Now().Add(expiry)

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		Expires:        exp,
		ContentType:    contentType,
		GoogleAccessID: h.serviceAccount,
		SignBytes: func(b []byte) ([]byte, error) {
			return h.sign(ctx, h.serviceAccount, b)
		},
	}
	url, err := storage.SignedURL(h.bucket, object, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign url (check service account + permissions): %w", err)
	}
	return url, exp, nil
}
