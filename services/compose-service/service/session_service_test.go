package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

func newSessionWithAssets(t *testing.T) (*SessionService, string, []models.ImageAsset, []models.ImageAsset) {
	t.Helper()
	svc := NewSessionService(1<<20, quietLogger())
	sess := svc.Create()

	var photos, inspos []models.ImageAsset
	for i := 0; i < 2; i++ {
		p, err := svc.AddAsset(sess.ID, AssetPhoto, models.ImageAsset{Encoded: "aGVsbG8=", OriginalName: "me.jpg"})
		require.NoError(t, err)
		photos = append(photos, p)
		in, err := svc.AddAsset(sess.ID, AssetInspiration, models.ImageAsset{Binary: []byte{1, 2, 3}})
		require.NoError(t, err)
		inspos = append(inspos, in)
	}
	return svc, sess.ID, photos, inspos
}

func TestSessionSelectCreatesPair(t *testing.T) {
	svc, id, photos, inspos := newSessionWithAssets(t)

	res, err := svc.Select(id, AssetPhoto, photos[1].ID)
	require.NoError(t, err)
	assert.Nil(t, res.Paired)
	assert.Equal(t, photos[1].ID, res.Session.SelectedPhoto)

	res, err = svc.Select(id, AssetInspiration, inspos[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Paired)
	assert.Equal(t, photos[1].ID, res.Paired.Photo.ID)
	assert.Equal(t, inspos[0].ID, res.Paired.Inspiration.ID)
	assert.Empty(t, res.Session.SelectedPhoto)
	assert.Empty(t, res.Session.SelectedInspiration)
	assert.Len(t, res.Session.Pairs, 1)
}

func TestSessionSelectTogglesOff(t *testing.T) {
	svc, id, photos, _ := newSessionWithAssets(t)

	_, err := svc.Select(id, AssetPhoto, photos[0].ID)
	require.NoError(t, err)
	res, err := svc.Select(id, AssetPhoto, photos[0].ID)
	require.NoError(t, err)
	assert.Empty(t, res.Session.SelectedPhoto)

	_, err = svc.Select(id, AssetPhoto, "nope")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	_, err = svc.Select(id, "video", photos[0].ID)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSessionRemoveAssetKeepsPairs(t *testing.T) {
	svc, id, photos, inspos := newSessionWithAssets(t)

	_, err := svc.AddPair(id, photos[0].ID, inspos[0].ID)
	require.NoError(t, err)
	_, err = svc.Select(id, AssetPhoto, photos[0].ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveAsset(id, AssetPhoto, photos[0].ID))
	assert.ErrorIs(t, svc.RemoveAsset(id, AssetPhoto, photos[0].ID), ErrAssetNotFound)

	sess, err := svc.Get(id)
	require.NoError(t, err)
	assert.Len(t, sess.Photos, 1)
	assert.Empty(t, sess.SelectedPhoto)
	require.Len(t, sess.Pairs, 1)
	assert.Equal(t, photos[0].ID, sess.Pairs[0].Photo.ID)
}

func TestSessionPairsByIndex(t *testing.T) {
	svc, id, photos, inspos := newSessionWithAssets(t)

	_, err := svc.AddPair(id, photos[0].ID, inspos[0].ID)
	require.NoError(t, err)
	_, err = svc.AddPair(id, photos[1].ID, inspos[1].ID)
	require.NoError(t, err)
	_, err = svc.AddPair(id, "missing", inspos[1].ID)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	require.NoError(t, svc.RemovePair(id, 0))
	assert.ErrorIs(t, svc.RemovePair(id, 3), ErrPairOutOfRange)

	pairs, err := svc.Pairs(id)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, photos[1].ID, pairs[0].Photo.ID)
}

func TestSessionAssetLimitsAndLifecycle(t *testing.T) {
	svc := NewSessionService(4, quietLogger())
	sess := svc.Create()

	_, err := svc.AddAsset(sess.ID, AssetPhoto, models.ImageAsset{})
	assert.True(t, IsKind(err, KindValidation))
	_, err = svc.AddAsset(sess.ID, AssetPhoto, models.ImageAsset{Binary: []byte("too large")})
	assert.ErrorIs(t, err, ErrAssetTooLarge)
	_, err = svc.AddAsset("nope", AssetPhoto, models.ImageAsset{Binary: []byte("ok")})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.Delete(sess.ID))
	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Delete(sess.ID), ErrSessionNotFound)
}
