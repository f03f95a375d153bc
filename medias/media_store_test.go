package medias_test

import (
	"bourracho/domain"
	"bourracho/errors"
	"bourracho/medias"
	"bourracho/mocks"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMediaStore_Upload(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)
	store := medias.NewMediaStore(log, blobs, 0, false)

	// Given a png upload
	upload := medias.Upload{Filename: "cat.png", ContentType: "image/png", Content: []byte("fake png")}
	var storedKey string
	blobs.EXPECT().Put(ctx, gomock.Any(), gomock.Any(), int64(8), "image/png").
		DoAndReturn(func(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
			storedKey = key
			content, err := io.ReadAll(r)
			req.NoError(err)
			req.Equal("fake png", string(content))
			return "s3://media-files/" + key, nil
		})
	blobs.EXPECT().Presign(ctx, gomock.Any(), medias.DefaultURLTTL).Return("https://cdn/presigned", nil)

	// When
	media, err := store.Upload(ctx, upload, "ABC123", "alice")

	// Then
	req.NoError(err)
	req.Equal(domain.MediaImage, media.Type)
	req.Equal(storedKey, media.Key)
	req.Equal(fmt.Sprintf("ABC123/%s.png", media.ID), media.Key)
	req.Equal("s3://media-files/"+media.Key, media.URI)
	req.Equal(int64(8), media.Size)
	req.Equal("alice", media.IssuerID)
	req.Equal("https://cdn/presigned", media.URL)
}

func TestMediaStore_Upload_Unsupported(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)
	store := medias.NewMediaStore(slog.Default(), blobs, time.Minute, false)

	// Storage is never reached
	_, err := store.Upload(context.Background(),
		medias.Upload{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("hello")}, "ABC123", "alice")

	req.ErrorIs(err, errors.ErrUnsupportedMediaType)
}

func TestMediaStore_UploadAll_Removes_Stored_On_Failure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)
	store := medias.NewMediaStore(slog.Default(), blobs, time.Minute, true)

	uploads := []medias.Upload{
		{Filename: "a.mp3", ContentType: "audio/mpeg", Content: []byte("a")},
		{Filename: "b.mp4", ContentType: "video/mp4", Content: []byte("b")},
	}
	gomock.InOrder(
		blobs.EXPECT().Put(ctx, gomock.Any(), gomock.Any(), gomock.Any(), "audio/mpeg").Return("s3://b/a", nil),
		blobs.EXPECT().Put(ctx, gomock.Any(), gomock.Any(), gomock.Any(), "video/mp4").
			Return("", fmt.Errorf("%w: disk full", errors.ErrUnavailable)),
		blobs.EXPECT().Remove(ctx, gomock.Cond(func(key any) bool {
			return strings.HasPrefix(key.(string), "ABC123/") && strings.HasSuffix(key.(string), ".mp3")
		})).Return(nil),
	)

	medias, err := store.UploadAll(ctx, uploads, "ABC123", "alice")

	req.ErrorIs(err, errors.ErrUnavailable)
	req.Nil(medias)
}

func TestMediaStore_WithURLs(t *testing.T) {
	t.Run("proxied urls", func(t *testing.T) {
		req := require.New(t)
		store := medias.NewMediaStore(slog.Default(), nil, time.Minute, true)
		message := domain.Message{MediaMetadatas: []domain.MediaMetadata{{ID: "m1"}, {ID: "m2"}}}

		store.WithURLs(context.Background(), &message)

		req.Equal("/api/media/m1", message.MediaMetadatas[0].URL)
		req.Equal("/api/media/m2", message.MediaMetadatas[1].URL)
	})

	t.Run("presign failure leaves url empty", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		blobs := mocks.NewMockIBlobStore(ctrl)
		store := medias.NewMediaStore(slog.Default(), blobs, time.Minute, false)
		message := domain.Message{MediaMetadatas: []domain.MediaMetadata{{ID: "m1", Key: "ABC123/m1.png"}}}
		blobs.EXPECT().Presign(gomock.Any(), "ABC123/m1.png", time.Minute).Return("", fmt.Errorf("boom"))

		store.WithURLs(context.Background(), &message)

		req.Empty(message.MediaMetadatas[0].URL)
	})
}

func TestMediaStore_Download(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)
	store := medias.NewMediaStore(slog.Default(), blobs, time.Minute, true)
	blobs.EXPECT().Get(gomock.Any(), "ABC123/m1.png").Return(io.NopCloser(strings.NewReader("png")), nil)

	reader, err := store.Download(context.Background(), domain.MediaMetadata{ID: "m1", Key: "ABC123/m1.png"})
	req.NoError(err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	req.NoError(err)
	req.Equal("png", string(content))
}
