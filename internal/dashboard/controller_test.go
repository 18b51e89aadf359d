package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"uangku/internal/models"
	"uangku/internal/storage"
	"uangku/internal/upstream"
	"uangku/internal/upstream/upstreamtest"
)

type ControllerTestSuite struct {
	suite.Suite
	srv  *upstreamtest.Server
	db   *storage.DB
	ctrl *Controller
	sess models.SessionData
	ctx  context.Context
}

func (s *ControllerTestSuite) SetupTest() {
	s.srv = upstreamtest.NewServer(s.T())
	db, err := storage.NewDB(":memory:")
	require.NoError(s.T(), err)
	s.db = db

	client := upstream.NewClient(upstream.Options{BaseURL: s.srv.BaseURL()})
	s.ctrl = NewController(client, db)

	userID := s.srv.AddUser("budi", "rahasia")
	s.sess = models.SessionData{Token: s.srv.IssueToken(userID), UserID: userID, Username: "budi"}
	s.ctx = context.Background()
}

func (s *ControllerTestSuite) TearDownTest() {
	s.db.Close()
}

// assertMatchesServer checks every window against what the API serves now.
func (s *ControllerTestSuite) assertMatchesServer(snap *models.Snapshot) {
	client := upstream.NewClient(upstream.Options{BaseURL: s.srv.BaseURL()})
	for _, w := range models.Windows {
		want, err := client.ListTransactions(s.ctx, s.sess.Token, w)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), ids(want), ids(snap.Window(w)), "window %s", w)
	}
}

func ids(txs []models.Transaction) []int64 {
	out := make([]int64, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

func (s *ControllerTestSuite) TestLoadFetchesAllWindows() {
	s.srv.AddTransaction(s.sess.UserID, 1, 25000, "Makan", time.Time{})

	snap, err := s.ctrl.Load(s.ctx, s.sess)
	require.NoError(s.T(), err)
	assert.Len(s.T(), snap.Day, 1)
	assert.Len(s.T(), snap.Week, 1)
	assert.Len(s.T(), snap.Month, 1)
	assert.Equal(s.T(), 3, s.srv.RequestCount("/api/transactions/get/"))

	saved, err := s.db.LoadSnapshot(s.ctx, s.sess.UserID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), ids(snap.Month), ids(saved.Month))
}

func (s *ControllerTestSuite) TestLoadWithoutTokenFailsClosed() {
	_, err := s.ctrl.Load(s.ctx, models.SessionData{UserID: 1})
	assert.ErrorIs(s.T(), err, upstream.ErrNoToken)
	assert.Empty(s.T(), s.srv.Requests())
}

func (s *ControllerTestSuite) TestLoadFailsWhenAnyWindowFails() {
	s.srv.FailNext(upstreamtest.RouteList, http.StatusInternalServerError)

	_, err := s.ctrl.Load(s.ctx, s.sess)
	require.Error(s.T(), err)

	_, err = s.db.LoadSnapshot(s.ctx, s.sess.UserID)
	assert.ErrorIs(s.T(), err, storage.ErrNoSnapshot, "partial loads are never saved")
}

func (s *ControllerTestSuite) TestCreateReconcilesFromServer() {
	// Another tab writes right after ours; the result must show both.
	s.srv.AfterWrite(func(srv *upstreamtest.Server) {
		srv.AfterWrite(nil)
		srv.AddTransaction(s.sess.UserID, 2, 7000, "Dari tab lain", time.Time{})
	})

	snap, err := s.ctrl.Create(s.ctx, s.sess, models.NewTransaction{Amount: 25000, CategoryID: 1, Description: "Makan"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), snap.Month, 2)
	s.assertMatchesServer(snap)
	assert.Equal(s.T(), Idle, s.ctrl.State(s.sess.UserID, NewItemID))
}

func (s *ControllerTestSuite) TestDeleteReconcilesFromServer() {
	keep := s.srv.AddTransaction(s.sess.UserID, 1, 1000, "Tetap", time.Time{})
	gone := s.srv.AddTransaction(s.sess.UserID, 1, 2000, "Hapus", time.Time{})

	snap, err := s.ctrl.Delete(s.ctx, s.sess, gone.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []int64{keep.ID}, ids(snap.Month))
	s.assertMatchesServer(snap)
}

func (s *ControllerTestSuite) TestFailedDeleteRollsBack() {
	tx := s.srv.AddTransaction(s.sess.UserID, 1, 1000, "Tetap", time.Time{})
	_, err := s.ctrl.Load(s.ctx, s.sess)
	require.NoError(s.T(), err)

	s.srv.FailNext(upstreamtest.RouteDelete, http.StatusInternalServerError)
	snap, err := s.ctrl.Delete(s.ctx, s.sess, tx.ID)
	assert.Nil(s.T(), snap)
	require.ErrorIs(s.T(), err, ErrRollback)

	var syncErr *SyncError
	require.ErrorAs(s.T(), err, &syncErr)
	assert.Equal(s.T(), "delete", syncErr.Op)
	assert.Equal(s.T(), []int64{tx.ID}, ids(syncErr.LastKnownGood.Month))
	assert.Equal(s.T(), Idle, s.ctrl.State(s.sess.UserID, tx.ID))
}

func (s *ControllerTestSuite) TestFailedCreateWithoutSnapshot() {
	s.srv.FailNext(upstreamtest.RouteCreate, http.StatusBadRequest)

	_, err := s.ctrl.Create(s.ctx, s.sess, models.NewTransaction{Amount: 1, CategoryID: 1, Description: "x"})
	var syncErr *SyncError
	require.ErrorAs(s.T(), err, &syncErr)
	require.NotNil(s.T(), syncErr.LastKnownGood)
	assert.Empty(s.T(), syncErr.LastKnownGood.Month)
}

func (s *ControllerTestSuite) TestRevokedTokenSurfacesAsUnauthorized() {
	s.srv.RevokeTokens()

	_, err := s.ctrl.Delete(s.ctx, s.sess, 1)
	assert.ErrorIs(s.T(), err, ErrRollback)
	assert.True(s.T(), upstream.IsUnauthorized(err))
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

// blockingAPI holds DeleteTransaction until release is closed.
type blockingAPI struct {
	entered chan struct{}
	release chan struct{}
	lists   int
	mu      sync.Mutex
}

func (b *blockingAPI) ListTransactions(context.Context, string, models.Window) ([]models.Transaction, error) {
	b.mu.Lock()
	b.lists++
	b.mu.Unlock()
	return []models.Transaction{}, nil
}

func (b *blockingAPI) CreateTransaction(context.Context, string, models.NewTransaction) error {
	return errors.New("not used")
}

func (b *blockingAPI) DeleteTransaction(context.Context, string, int64) error {
	close(b.entered)
	<-b.release
	return nil
}

type memStore struct {
	mu    sync.Mutex
	snaps map[int64]*models.Snapshot
}

func (m *memStore) SaveSnapshot(_ context.Context, userID int64, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[userID] = snap
	return nil
}

func (m *memStore) LoadSnapshot(_ context.Context, userID int64) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[userID]
	if !ok {
		return nil, storage.ErrNoSnapshot
	}
	return snap, nil
}

func TestConcurrentMutationOnSameItemIsBusy(t *testing.T) {
	api := &blockingAPI{entered: make(chan struct{}), release: make(chan struct{})}
	ctrl := NewController(api, &memStore{snaps: map[int64]*models.Snapshot{}})
	sess := models.SessionData{Token: "tok", UserID: 1}
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Delete(ctx, sess, 5)
		done <- err
	}()
	<-api.entered

	assert.Equal(t, Pending, ctrl.State(1, 5))
	_, err := ctrl.Delete(ctx, sess, 5)
	assert.ErrorIs(t, err, ErrBusy)

	// Other items and other users are unaffected.
	assert.Equal(t, Idle, ctrl.State(1, 6))
	assert.Equal(t, Idle, ctrl.State(2, 5))

	close(api.release)
	require.NoError(t, <-done)
	assert.Equal(t, Idle, ctrl.State(1, 5))
	assert.Equal(t, 3, api.lists, "one reload after the mutation")
}

type failingListAPI struct{ blockingAPI }

func (f *failingListAPI) ListTransactions(context.Context, string, models.Window) ([]models.Transaction, error) {
	return nil, &upstream.APIError{Kind: upstream.KindNetwork, Op: "list_transactions", Err: errors.New("refused")}
}

func (f *failingListAPI) DeleteTransaction(context.Context, string, int64) error { return nil }

func TestReconcileFailure(t *testing.T) {
	ctrl := NewController(&failingListAPI{}, &memStore{snaps: map[int64]*models.Snapshot{}})

	_, err := ctrl.Delete(context.Background(), models.SessionData{Token: "tok", UserID: 1}, 5)
	assert.ErrorIs(t, err, ErrReconcile)
	assert.NotErrorIs(t, err, ErrRollback)
	assert.Equal(t, Idle, ctrl.State(1, 5))
}
