package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"album_poster/internal/domain"
	"album_poster/internal/service/mocks"
)

type PublishServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source      *mocks.MockAlbumSource
	selector    *mocks.MockSelector
	ledger      *mocks.MockLedger
	state       *mocks.MockStateStore
	txManager   *mocks.MockTransactionManager
	stager      *mocks.MockStager
	destination *mocks.MockDestination
	notifier    *mocks.MockNotifier
	metrics     *mocks.MockMetrics

	service *PublishService
	now     time.Time
}

func (s *PublishServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockAlbumSource(s.ctrl)
	s.selector = mocks.NewMockSelector(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.state = mocks.NewMockStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.stager = mocks.NewMockStager(s.ctrl)
	s.destination = mocks.NewMockDestination(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = mocks.NewMockMetrics(s.ctrl)

	s.source.EXPECT().Name().Return("Test Album").AnyTimes()
	s.destination.EXPECT().Name().Return("Test Destination").AnyTimes()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewPublishService(
		s.source,
		s.selector,
		s.ledger,
		s.state,
		s.txManager,
		s.stager,
		s.destination,
		s.notifier,
		s.metrics,
		logger,
	)

	s.now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.now }
}

func (s *PublishServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPublishServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PublishServiceTestSuite))
}

func (s *PublishServiceTestSuite) candidates() []domain.MediaItem {
	return []domain.MediaItem{
		{ID: "a", DownloadURL: "https://cdn.example/a", Filename: "a.jpg", Caption: "first", FileExtension: "jpg"},
		{ID: "b", DownloadURL: "https://cdn.example/b", Filename: "b.jpg", Caption: "second", FileExtension: "jpg"},
	}
}

func (s *PublishServiceTestSuite) passThroughTx(ctx context.Context) {
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *PublishServiceTestSuite) TestPublishOne_Success() {
	ctx := context.Background()
	items := s.candidates()
	chosen := items[1]
	file := &domain.StagedFile{ItemID: "b", Path: "/temp/staged.jpg", Size: 5}
	result := &domain.PublishResult{Status: domain.PublishStatusOK, RemoteID: "remote-1", URL: "https://m.example/1"}

	gomock.InOrder(
		s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil),
		s.selector.EXPECT().Choose(ctx, items).Return(&chosen, nil),
		s.stager.EXPECT().Stage(ctx, &chosen).Return(file, nil),
		s.destination.EXPECT().Login(ctx).Return(nil),
		s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil),
		s.destination.EXPECT().Publish(ctx, &domain.Post{Data: []byte("bytes"), Filename: "b.jpg", Caption: "second"}).Return(result, nil),
		s.stager.EXPECT().Release(file).Return(nil),
		s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
			func(ctx context.Context, fn func(context.Context) error) error {
				return fn(ctx)
			},
		),
	)

	s.ledger.EXPECT().MarkPublished(ctx, &domain.DedupRecord{
		ItemID:      "b",
		Filename:    "b.jpg",
		RemoteID:    "remote-1",
		PublishedAt: s.now,
	}).Return(nil)
	s.state.EXPECT().Get(ctx).Return(&domain.PublishState{TotalPublished: 4}, nil)
	s.state.EXPECT().Update(ctx, &domain.PublishState{
		LastItemID:      "b",
		LastPublishedAt: s.now,
		TotalPublished:  5,
	}).Return(nil)
	s.notifier.EXPECT().NotifyPublished(ctx, &domain.PublishedEvent{
		ItemID:      "b",
		Filename:    "b.jpg",
		Caption:     "second",
		RemoteID:    "remote-1",
		URL:         "https://m.example/1",
		PublishedAt: s.now,
	}).Return(nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomePublished, gomock.Any())

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().NoError(err)
	s.Equal(domain.OutcomePublished, report.Outcome)
	s.Equal(2, report.Candidates)
	s.Equal("b", report.Item.ID)
	s.Equal(result, report.Result)
	s.NotEmpty(report.CycleID)
}

func (s *PublishServiceTestSuite) TestPublishOne_NoneAvailable() {
	ctx := context.Background()
	items := s.candidates()

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(nil, nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomeNoneAvailable, gomock.Any())

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().NoError(err)
	s.Equal(domain.OutcomeNoneAvailable, report.Outcome)
	s.Nil(report.Item)
}

func (s *PublishServiceTestSuite) TestPublishOne_FetchError() {
	ctx := context.Background()

	s.source.EXPECT().FetchItems(ctx, "token").Return(nil, errors.New("album unavailable"))
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().Error(err)
	s.Contains(err.Error(), "fetch items")
	s.Equal(domain.OutcomeFailed, report.Outcome)
}

func (s *PublishServiceTestSuite) TestPublishOne_ChooseError() {
	ctx := context.Background()
	items := s.candidates()

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(nil, errors.New("ledger locked"))
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())

	_, err := s.service.PublishOne(ctx, "token")
	s.Require().Error(err)
	s.Contains(err.Error(), "choose item")
}

func (s *PublishServiceTestSuite) TestPublishOne_DownloadFailure() {
	ctx := context.Background()
	items := s.candidates()

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(nil, errors.New("unexpected status: 403"))
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())
	// no login, publish, release or record expected

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().Error(err)
	s.Contains(err.Error(), "stage item")
	s.Equal(domain.OutcomeFailed, report.Outcome)
}

func (s *PublishServiceTestSuite) TestPublishOne_LoginFailureReleasesFile() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(errors.New("bad password"))
	s.stager.EXPECT().Release(file).Return(nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())

	_, err := s.service.PublishOne(ctx, "token")

	s.Require().Error(err)
	s.Contains(err.Error(), "login")
}

func (s *PublishServiceTestSuite) TestPublishOne_PublishFailureDoesNotRecord() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(nil)
	s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil)
	s.destination.EXPECT().Publish(ctx, gomock.Any()).Return(nil, errors.New("upload failed"))
	s.stager.EXPECT().Release(file).Return(nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())

	_, err := s.service.PublishOne(ctx, "token")

	s.Require().Error(err)
	s.Contains(err.Error(), "publish")
}

func (s *PublishServiceTestSuite) TestPublishOne_RejectedStatusDoesNotRecord() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(nil)
	s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil)
	s.destination.EXPECT().Publish(ctx, gomock.Any()).Return(&domain.PublishResult{Status: "pending"}, nil)
	s.stager.EXPECT().Release(file).Return(nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().ErrorIs(err, ErrPublishRejected)
	s.Equal("pending", report.Result.Status)
}

func (s *PublishServiceTestSuite) TestPublishOne_ReleaseErrorIsNotEscalated() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}
	result := &domain.PublishResult{Status: domain.PublishStatusOK, RemoteID: "r"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(nil)
	s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil)
	s.destination.EXPECT().Publish(ctx, gomock.Any()).Return(result, nil)
	s.stager.EXPECT().Release(file).Return(errors.New("permission denied"))
	s.passThroughTx(ctx)
	s.ledger.EXPECT().MarkPublished(ctx, gomock.Any()).Return(nil)
	s.state.EXPECT().Get(ctx).Return(&domain.PublishState{}, nil)
	s.state.EXPECT().Update(ctx, gomock.Any()).Return(nil)
	s.notifier.EXPECT().NotifyPublished(ctx, gomock.Any()).Return(nil)
	s.metrics.EXPECT().ObservePublish(domain.OutcomePublished, gomock.Any())

	report, err := s.service.PublishOne(ctx, "token")

	s.Require().NoError(err)
	s.Equal(domain.OutcomePublished, report.Outcome)
}

func (s *PublishServiceTestSuite) TestPublishOne_RecordFailure() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}
	result := &domain.PublishResult{Status: domain.PublishStatusOK, RemoteID: "r"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(nil)
	s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil)
	s.destination.EXPECT().Publish(ctx, gomock.Any()).Return(result, nil)
	s.stager.EXPECT().Release(file).Return(nil)
	s.passThroughTx(ctx)
	s.ledger.EXPECT().MarkPublished(ctx, gomock.Any()).Return(errors.New("disk full"))
	s.metrics.EXPECT().ObservePublish(domain.OutcomeFailed, gomock.Any())
	// no notification for an unrecorded item

	_, err := s.service.PublishOne(ctx, "token")

	s.Require().Error(err)
	s.Contains(err.Error(), "record published item")
}

func (s *PublishServiceTestSuite) TestPublishOne_NotifyErrorIsIgnored() {
	ctx := context.Background()
	items := s.candidates()
	file := &domain.StagedFile{ItemID: "a", Path: "/temp/staged.jpg"}
	result := &domain.PublishResult{Status: domain.PublishStatusOK, RemoteID: "r"}

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(&items[0], nil)
	s.stager.EXPECT().Stage(ctx, &items[0]).Return(file, nil)
	s.destination.EXPECT().Login(ctx).Return(nil)
	s.stager.EXPECT().Read(file).Return([]byte("bytes"), nil)
	s.destination.EXPECT().Publish(ctx, gomock.Any()).Return(result, nil)
	s.stager.EXPECT().Release(file).Return(nil)
	s.passThroughTx(ctx)
	s.ledger.EXPECT().MarkPublished(ctx, gomock.Any()).Return(nil)
	s.state.EXPECT().Get(ctx).Return(&domain.PublishState{}, nil)
	s.state.EXPECT().Update(ctx, gomock.Any()).Return(nil)
	s.notifier.EXPECT().NotifyPublished(ctx, gomock.Any()).Return(errors.New("broker down"))
	s.metrics.EXPECT().ObservePublish(domain.OutcomePublished, gomock.Any())

	_, err := s.service.PublishOne(ctx, "token")
	s.NoError(err)
}

func (s *PublishServiceTestSuite) TestPublishOne_OptionalCollaboratorsNil() {
	ctx := context.Background()
	items := s.candidates()

	svc := NewPublishService(
		s.source, s.selector, s.ledger, s.state, s.txManager, s.stager, s.destination,
		nil, nil,
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	)

	s.source.EXPECT().FetchItems(ctx, "token").Return(items, nil)
	s.selector.EXPECT().Choose(ctx, items).Return(nil, nil)

	report, err := svc.PublishOne(ctx, "token")
	s.Require().NoError(err)
	s.Equal(domain.OutcomeNoneAvailable, report.Outcome)
}
