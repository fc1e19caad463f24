package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestImageService_UploadAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	blobs, err := NewLocalBlobStore(dir, "/uploads")
	require.NoError(t, err)
	images := NewImageService(db, blobs)

	res, err := images.Upload(ctx, "user-1", "photo.jpeg", bytes.NewReader(append(pngHeader, make([]byte, 2048)...)))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Filename, ".png"), "extension follows sniffed type")
	assert.Equal(t, "/uploads/"+res.Filename, res.ImageURL)

	data, err := os.ReadFile(filepath.Join(dir, res.Filename))
	require.NoError(t, err)
	assert.Len(t, data, len(pngHeader)+2048)

	assert.ErrorIs(t, images.Delete(ctx, "user-2", res.ID), ErrForbidden)
	require.NoError(t, images.Delete(ctx, "user-1", res.Filename))
	_, err = os.Stat(filepath.Join(dir, res.Filename))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, images.Delete(ctx, "user-1", res.ID), ErrImageNotFound)
}

func TestImageService_RejectsNonImages(t *testing.T) {
	ctx := context.Background()
	blobs, err := NewLocalBlobStore(t.TempDir(), "/uploads/")
	require.NoError(t, err)
	images := NewImageService(newTestDB(t), blobs)

	_, err = images.Upload(ctx, "user-1", "notes.jpg", strings.NewReader("just some text pretending to be a photo"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = images.Upload(ctx, "user-1", "empty.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestSafeSearchResult_IsUnsafe(t *testing.T) {
	assert.False(t, (&SafeSearchResult{Adult: "UNLIKELY", Racy: "POSSIBLE"}).IsUnsafe())
	assert.True(t, (&SafeSearchResult{Violence: "LIKELY"}).IsUnsafe())
	assert.True(t, (&SafeSearchResult{Racy: "VERY_LIKELY"}).IsUnsafe())
	assert.False(t, (&SafeSearchResult{Spoof: "VERY_LIKELY", Medical: "VERY_LIKELY"}).IsUnsafe())

	var missing *SafeSearchResult
	assert.False(t, missing.IsUnsafe())
	assert.Equal(t, []string{"adult", "racy"}, (&SafeSearchResult{Adult: "VERY_LIKELY", Racy: "LIKELY", Violence: "POSSIBLE"}).Flagged())
	assert.Empty(t, (&SafeSearchResult{Adult: "garbage"}).Flagged())
}

func TestFirebaseDownloadURL(t *testing.T) {
	got := firebaseDownloadURL("bete.appspot.com", "bete_properties/a b.jpg", "tok")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/bete.appspot.com/o/bete_properties%2Fa%20b.jpg?alt=media&token=tok", got)
}
