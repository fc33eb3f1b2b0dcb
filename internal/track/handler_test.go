package track

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"daily-digest/internal/digest"
	"daily-digest/internal/engagement"
)

type mockEngagementRepo struct {
	mock.Mock
}

func (m *mockEngagementRepo) RecordSend(ctx context.Context, ev *engagement.SendEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockEngagementRepo) RecordOpen(ctx context.Context, ev *engagement.OpenEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockEngagementRepo) CloseLatestOpen(ctx context.Context, trackingID string, timeSpentSeconds int, closedAt time.Time) error {
	args := m.Called(ctx, trackingID, timeSpentSeconds, closedAt)
	return args.Error(0)
}

func (m *mockEngagementRepo) RecordClick(ctx context.Context, ev *engagement.ClickEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendToday(ctx context.Context) (int, bool) {
	args := m.Called(ctx)
	return args.Int(0), args.Bool(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEngagement(ctx context.Context, msg EngagementMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type HandlerSuite struct {
	suite.Suite

	events *mockEngagementRepo
	sender *mockSender

	logBuf *bytes.Buffer
	router *mux.Router
	h      *Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.events = &mockEngagementRepo{}
	s.sender = &mockSender{}

	s.logBuf = &bytes.Buffer{}
	s.h = NewHandler(s.events, s.sender, nil, log.New(s.logBuf, "", 0))
	s.h.now = func() time.Time {
		return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	}

	s.router = mux.NewRouter()
	s.h.Register(s.router)
}

func (s *HandlerSuite) get(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("User-Agent", "TestMail/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestOpenPixel_RecordsOpenAndServesGIF() {
	var recorded *engagement.OpenEvent
	s.events.On("RecordOpen", mock.Anything, mock.AnythingOfType("*engagement.OpenEvent")).
		Run(func(args mock.Arguments) {
			recorded = args.Get(1).(*engagement.OpenEvent)
		}).
		Return(nil).Once()

	rec := s.get("/track/tid-1", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("image/gif", rec.Header().Get("Content-Type"))
	s.Equal(pixelGIF, rec.Body.Bytes())

	s.Require().NotNil(recorded)
	s.Equal("tid-1", recorded.TrackingID)
	s.Equal("203.0.113.9", recorded.IP)
	s.Equal("TestMail/1.0", recorded.UserAgent)
	s.Equal(0, recorded.TimeSpentSeconds)
}

func (s *HandlerSuite) TestOpenPixel_StoreFailureStillServesGIF() {
	s.events.On("RecordOpen", mock.Anything, mock.Anything).
		Return(errors.New("store down")).Once()

	rec := s.get("/track/tid-2", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(pixelGIF, rec.Body.Bytes())
	s.Contains(s.logBuf.String(), "failed to record open")
}

func (s *HandlerSuite) TestOpenPixel_ForwardedForWins() {
	var recorded *engagement.OpenEvent
	s.events.On("RecordOpen", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recorded = args.Get(1).(*engagement.OpenEvent)
		}).
		Return(nil).Once()

	s.get("/track/tid-3", map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"})

	s.Require().NotNil(recorded)
	s.Equal("198.51.100.7", recorded.IP)
}

func (s *HandlerSuite) TestCloseSignal_PatchesLatestOpen() {
	s.events.On("CloseLatestOpen", mock.Anything, "tid-4", 42, mock.AnythingOfType("time.Time")).
		Return(nil).Once()

	rec := s.get("/track/close/tid-4?time_spent=42", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.events.AssertExpectations(s.T())
}

// The unload hook in the rendered digest delivers the close signal with
// navigator.sendBeacon, which always issues a POST.
func (s *HandlerSuite) TestCloseSignal_AcceptsBeaconPOST() {
	s.events.On("CloseLatestOpen", mock.Anything, "tid-4", 42, mock.AnythingOfType("time.Time")).
		Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/track/close/tid-4?time_spent=42", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.events.AssertExpectations(s.T())
}

// Round trip from the renderer's unload hook to the close route, so the two
// sides cannot drift apart on URL shape or method.
func (s *HandlerSuite) TestCloseSignal_RenderedUnloadHookReachesCloseRoute() {
	html, err := digest.NewRenderer("").Render(nil, "tid-rt", "2024-05-01")
	s.Require().NoError(err)

	m := regexp.MustCompile(`sendBeacon\("([^"]+)"`).FindStringSubmatch(html)
	s.Require().Len(m, 2, "rendered digest should carry a sendBeacon close URL")
	closeURL := m[1] + "17"

	s.events.On("CloseLatestOpen", mock.Anything, "tid-rt", 17, mock.AnythingOfType("time.Time")).
		Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, closeURL, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.events.AssertExpectations(s.T())
}

func (s *HandlerSuite) TestCloseSignal_NoOpenIsNotFoundAndCreatesNothing() {
	s.events.On("CloseLatestOpen", mock.Anything, "never-seen", 10, mock.Anything).
		Return(engagement.ErrNoOpenEvent).Once()

	rec := s.get("/track/close/never-seen?time_spent=10", nil)

	s.Equal(http.StatusNotFound, rec.Code)
	s.events.AssertNotCalled(s.T(), "RecordOpen")
}

func (s *HandlerSuite) TestCloseSignal_StoreFailureAnswersOK() {
	s.events.On("CloseLatestOpen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("store down")).Once()

	rec := s.get("/track/close/tid-5?time_spent=7", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(s.logBuf.String(), "failed to close open")
}

func (s *HandlerSuite) TestCloseSignal_InvalidTimeSpent() {
	rec := s.get("/track/close/tid-6?time_spent=abc", nil)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.events.AssertNotCalled(s.T(), "CloseLatestOpen")
}

func (s *HandlerSuite) TestClickSignal_RecordsAndRedirects() {
	var recorded *engagement.ClickEvent
	s.events.On("RecordClick", mock.Anything, mock.AnythingOfType("*engagement.ClickEvent")).
		Run(func(args mock.Arguments) {
			recorded = args.Get(1).(*engagement.ClickEvent)
		}).
		Return(nil).Once()

	rec := s.get("/track/click/tid-7?url=https%3A%2F%2Fnews.example.com%2Fstory", nil)

	s.Equal(http.StatusFound, rec.Code)
	s.Equal("https://news.example.com/story", rec.Header().Get("Location"))

	s.Require().NotNil(recorded)
	s.Equal("tid-7", recorded.TrackingID)
	s.Equal("https://news.example.com/story", recorded.TargetURL)
}

func (s *HandlerSuite) TestClickSignal_StoreFailureStillRedirects() {
	s.events.On("RecordClick", mock.Anything, mock.Anything).
		Return(errors.New("store down")).Once()

	rec := s.get("/track/click/tid-8?url=https%3A%2F%2Fexample.com", nil)

	s.Equal(http.StatusFound, rec.Code)
	s.Contains(s.logBuf.String(), "failed to record click")
}

func (s *HandlerSuite) TestClickSignal_NoURLAcknowledges() {
	s.events.On("RecordClick", mock.Anything, mock.Anything).Return(nil).Once()

	rec := s.get("/track/click/tid-9", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Empty(rec.Header().Get("Location"))
}

func (s *HandlerSuite) TestTriggerSend_ReportsCounts() {
	s.sender.On("SendToday", mock.Anything).Return(5, true).Once()

	rec := s.get("/send_emails", nil)

	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("sent", body["status"])
	s.Equal(float64(5), body["items"])
}

func (s *HandlerSuite) TestTriggerSend_FailureIsVisible() {
	s.sender.On("SendToday", mock.Anything).Return(0, false).Once()

	rec := s.get("/send_emails", nil)

	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *HandlerSuite) TestHealth() {
	rec := s.get("/health", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", rec.Body.String())
}

func (s *HandlerSuite) TestOpenPixel_PublishesEngagement() {
	pub := &mockPublisher{}
	s.h = NewHandler(s.events, s.sender, pub, log.New(s.logBuf, "", 0))
	s.router = mux.NewRouter()
	s.h.Register(s.router)

	s.events.On("RecordOpen", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("PublishEngagement", mock.Anything, mock.MatchedBy(func(msg EngagementMessage) bool {
		return msg.Event == EventOpened && msg.TrackingID == "tid-10"
	})).Return(nil).Once()

	s.get("/track/tid-10", nil)

	pub.AssertExpectations(s.T())
}

func (s *HandlerSuite) TestOpenPixel_PublishFailureIsSwallowed() {
	pub := &mockPublisher{}
	s.h = NewHandler(s.events, s.sender, pub, log.New(s.logBuf, "", 0))
	s.router = mux.NewRouter()
	s.h.Register(s.router)

	s.events.On("RecordOpen", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("PublishEngagement", mock.Anything, mock.Anything).
		Return(errors.New("broker gone")).Once()

	rec := s.get("/track/tid-11", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(s.logBuf.String(), "failed to publish")
}
