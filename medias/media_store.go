//go:generate go run go.uber.org/mock/mockgen -source=media_store.go -destination=../mocks/mock_blob_store.go -package=mocks
package medias

import (
	"bourracho/domain"
	"bourracho/domain/mimetypes"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultURLTTL is the validity of presigned media URLs.
const DefaultURLTTL = 30 * time.Minute

// IBlobStore is the object storage seen by the media store.
type IBlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// Upload is a media file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

type MediaStore struct {
	log     *slog.Logger
	blobs   IBlobStore
	urlTTL  time.Duration
	proxied bool
	now     func() time.Time
}

// NewMediaStore builds a store handing out presigned URLs, or backend URLs
// "/api/media/{id}" when proxied is set (object storage not reachable by clients).
func NewMediaStore(log *slog.Logger, blobs IBlobStore, urlTTL time.Duration, proxied bool) MediaStore {
	if urlTTL <= 0 {
		urlTTL = DefaultURLTTL
	}
	return MediaStore{log: log, blobs: blobs, urlTTL: urlTTL, proxied: proxied, now: time.Now}
}

// Upload classifies and stores a file under "{conversationId}/{mediaId}{ext}".
func (s MediaStore) Upload(ctx context.Context, upload Upload, conversationID, issuerID string) (domain.MediaMetadata, error) {
	mediaType, err := mimetypes.Classify(upload.ContentType, upload.Filename, upload.Content)
	if err != nil {
		return domain.MediaMetadata{}, err
	}

	mediaID := uuid.NewString()
	key := fmt.Sprintf("%s/%s%s", conversationID, mediaID, mimetypes.Extension(upload.Filename))
	size := int64(len(upload.Content))
	uri, err := s.blobs.Put(ctx, key, bytes.NewReader(upload.Content), size, upload.ContentType)
	if err != nil {
		s.log.Error("Upload failed", "key", key, "error", err)
		return domain.MediaMetadata{}, err
	}

	media := domain.MediaMetadata{
		ID:        mediaID,
		URI:       uri,
		Key:       key,
		Size:      size,
		Type:      mediaType,
		IssuerID:  issuerID,
		Timestamp: s.now().UTC(),
	}
	s.withURL(ctx, &media)
	return media, nil
}

// UploadAll stores every upload. Objects already stored are removed when one fails.
func (s MediaStore) UploadAll(ctx context.Context, uploads []Upload, conversationID, issuerID string) ([]domain.MediaMetadata, error) {
	medias := make([]domain.MediaMetadata, 0, len(uploads))
	for _, upload := range uploads {
		media, err := s.Upload(ctx, upload, conversationID, issuerID)
		if err != nil {
			for _, stored := range medias {
				if rmErr := s.blobs.Remove(ctx, stored.Key); rmErr != nil {
					s.log.Warn("Orphan media left in storage", "key", stored.Key, "error", rmErr)
				}
			}
			return nil, err
		}
		medias = append(medias, media)
	}
	return medias, nil
}

// WithURLs fills the retrieval URL of every media of the messages.
func (s MediaStore) WithURLs(ctx context.Context, messages ...*domain.Message) {
	for _, message := range messages {
		for i := range message.MediaMetadatas {
			s.withURL(ctx, &message.MediaMetadatas[i])
		}
	}
}

// Download streams the content of a stored media.
func (s MediaStore) Download(ctx context.Context, media domain.MediaMetadata) (io.ReadCloser, error) {
	return s.blobs.Get(ctx, media.Key)
}

// A failed presign leaves the URL empty, the message is still served.
func (s MediaStore) withURL(ctx context.Context, media *domain.MediaMetadata) {
	if s.proxied {
		media.URL = "/api/media/" + media.ID
		return
	}
	url, err := s.blobs.Presign(ctx, media.Key, s.urlTTL)
	if err != nil {
		s.log.Error("Failed to generate presigned URL", "media_id", media.ID, "error", err)
		return
	}
	media.URL = url
}
