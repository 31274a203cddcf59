package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
	"github.com/mycoderisyad/video-downloader-uploader/internal/runner"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/youtube"
	_ "github.com/mycoderisyad/video-downloader-uploader/providers"
)

type upload struct {
	token    string
	path     string
	video    youtube.Video
	progress float64
	status   job.Status
}

type fakeAPI struct {
	mu         sync.Mutex
	store      job.Store
	refreshErr error
	refreshed  int
	uploadErr  error
	uploads    []upload
}

func (f *fakeAPI) AuthURL(config *oauth2.Config, state string) string {
	return config.ClientID + "?" + state
}

func (f *fakeAPI) Exchange(ctx context.Context, config *oauth2.Config, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "exchanged", RefreshToken: "refresh"}, nil
}

func (f *fakeAPI) Refresh(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &oauth2.Token{AccessToken: "refreshed", RefreshToken: token.RefreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAPI) Upload(ctx context.Context, config *oauth2.Config, token *oauth2.Token, path string, video youtube.Video, onProgress func(sent, total int64)) (string, error) {
	f.mu.Lock()
	rec := upload{token: token.AccessToken, path: path, video: video}
	for _, j := range f.store.List() {
		if j.Kind == job.KindDirectUpload {
			rec.progress, rec.status = j.Progress, j.Status
		}
	}
	f.uploads = append(f.uploads, rec)
	err := f.uploadErr
	f.mu.Unlock()
	if _, statErr := os.Stat(path); statErr != nil {
		return "", statErr
	}
	if err != nil {
		return "", err
	}
	onProgress(50, 100)
	onProgress(100, 100)
	return "vid123", nil
}

func (f *fakeAPI) Channel(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*youtube.Channel, error) {
	return &youtube.Channel{ID: "UC1", Title: "My Channel"}, nil
}

type fileRunner struct{}

func (fileRunner) Run(ctx context.Context, inv runner.Invocation, onSample func(*progress.Sample)) (*runner.Result, error) {
	for _, p := range []float64{20, 60, 100} {
		p := p
		onSample(&progress.Sample{Percent: &p})
	}
	path := filepath.Join(inv.Request.Dir, inv.Request.Base+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		return nil, err
	}
	return &runner.Result{Tool: inv.Tool, OutputPath: path}, nil
}

type fixture struct {
	settings *video_downloader.Config
	store    job.Store
	sessions *session.MemoryDatabase
	api      *fakeAPI
	dl       *downloader.Downloader
	up       *Uploader
}

func newFixture(t *testing.T) *fixture {
	settings := video_downloader.DefaultConfig()
	settings.DownloadDir = t.TempDir()
	settings.TempDir = t.TempDir()
	settings.OAuth = video_downloader.OAuthConfig{ClientID: "server-id", ClientSecret: "server-secret", RedirectURI: "http://localhost/cb"}
	f := &fixture{
		settings: &settings,
		store:    job.NewMemoryStore(),
		sessions: session.NewMemoryDatabase(),
	}
	f.api = &fakeAPI{store: f.store}
	f.dl = downloader.New(downloader.Config{Settings: f.settings, Store: f.store, Runner: fileRunner{}}, context.Background())
	f.up = New(Config{
		Settings:               f.settings,
		Store:                  f.store,
		Sessions:               f.sessions,
		API:                    f.api,
		Downloader:             f.dl,
		ProgressUpdateInterval: time.Nanosecond,
	})
	t.Cleanup(func() {
		f.dl.Close()
		f.store.Close()
	})
	return f
}

func (f *fixture) completedDownload(t *testing.T) job.Job {
	path := filepath.Join(f.settings.DownloadDir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0644))
	j, err := f.store.Create(job.Job{Kind: job.KindDownload, Title: "Clip"})
	require.NoError(t, err)
	completed := job.StatusCompleted
	j, err = f.store.Update(j.ID, job.Patch{Status: &completed, OutputPath: &path})
	require.NoError(t, err)
	return j
}

func (f *fixture) authenticate(t *testing.T, sessionID string, expiry time.Time) {
	require.NoError(t, f.sessions.PutToken(sessionID, &oauth2.Token{AccessToken: "stored", RefreshToken: "refresh", Expiry: expiry}))
}

func (f *fixture) waitFinished(t *testing.T, id string) job.Job {
	t.Helper()
	var j job.Job
	require.Eventually(t, func() bool {
		var err error
		j, err = f.store.Get(id)
		return err == nil && j.Status.IsFinished()
	}, 5*time.Second, 10*time.Millisecond)
	return j
}

func TestUpload_Preconditions(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.authenticate(t, "s1", time.Now().Add(time.Hour))

	_, err := f.up.Upload(Request{DownloadJobID: "missing", SessionID: "s1"})
	assert.ErrorIs(err, failure.NotFound)

	running, _ := f.store.Create(job.Job{Kind: job.KindDownload})
	f.store.Update(running.ID, job.StatusPatch(job.StatusDownloading))
	_, err = f.up.Upload(Request{DownloadJobID: running.ID, SessionID: "s1"})
	assert.ErrorIs(err, failure.InvalidInput)
	assert.ErrorIs(err, ErrDownloadNotFinished)
	assert.Equal(failure.InvalidInput.HTTPStatus(), failure.KindOf(err).HTTPStatus())

	done := f.completedDownload(t)
	require.NoError(t, os.Remove(done.OutputPath))
	_, err = f.up.Upload(Request{DownloadJobID: done.ID, SessionID: "s1"})
	assert.ErrorIs(err, failure.NotFound)

	done = f.completedDownload(t)
	_, err = f.up.Upload(Request{DownloadJobID: done.ID, SessionID: "someone-else"})
	assert.ErrorIs(err, failure.AuthRequired)

	assert.Len(f.store.List(), 3)
	assert.Empty(f.api.uploads)
}

func TestUpload_Success(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.authenticate(t, "s1", time.Now().Add(time.Hour))
	src := f.completedDownload(t)

	j, err := f.up.Upload(Request{DownloadJobID: src.ID, SessionID: "s1", Tags: []string{"a"}, Privacy: "unlisted"})
	require.NoError(t, err)
	assert.Equal(job.KindUpload, j.Kind)
	assert.Equal(src.ID, j.DownloadJobID)

	done := f.waitFinished(t, j.ID)
	assert.Equal(job.StatusCompleted, done.Status)
	assert.Equal(100.0, done.Progress)
	assert.Equal("vid123", done.VideoID)
	require.Len(t, f.api.uploads, 1)
	up := f.api.uploads[0]
	assert.Equal("stored", up.token)
	assert.Equal(src.OutputPath, up.path)
	assert.Equal("Clip", up.video.Title)
	assert.Equal("unlisted", up.video.Privacy)
	assert.Equal(0, f.api.refreshed)
	// The download stays where it was
	assert.FileExists(src.OutputPath)
}

func TestUpload_ProactiveRefresh(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.authenticate(t, "s1", time.Now().Add(2*time.Minute))
	src := f.completedDownload(t)

	j, _ := f.up.Upload(Request{DownloadJobID: src.ID, SessionID: "s1"})
	done := f.waitFinished(t, j.ID)
	assert.Equal(job.StatusCompleted, done.Status)
	assert.Equal(1, f.api.refreshed)
	assert.Equal("refreshed", f.api.uploads[0].token)
	stored, err := f.sessions.GetToken("s1")
	assert.NoError(err)
	assert.Equal("refreshed", stored.AccessToken)
}

func TestUpload_RefreshFails(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.api.refreshErr = errors.New("invalid_grant")
	f.authenticate(t, "s1", time.Now().Add(-time.Minute))
	src := f.completedDownload(t)

	j, _ := f.up.Upload(Request{DownloadJobID: src.ID, SessionID: "s1"})
	done := f.waitFinished(t, j.ID)
	assert.Equal(job.StatusError, done.Status)
	assert.Equal(failure.AuthRequired, done.ErrorKind)
	assert.Empty(f.api.uploads)
	_, err := f.sessions.GetToken("s1")
	assert.ErrorIs(err, session.ErrNoToken)
}

func TestUpload_Classification(t *testing.T) {
	cases := []struct {
		err       error
		kind      failure.Kind
		keepToken bool
		message   string
	}{
		{&googleapi.Error{Code: 401, Message: "Invalid Credentials"}, failure.AuthRequired, false, failure.AuthRequired.Message()},
		{&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}, failure.QuotaExceeded, true, failure.QuotaExceeded.Message()},
		{&googleapi.Error{Code: 403, Message: "The caller does not have permission"}, failure.PermissionDenied, true, failure.PermissionDenied.Message()},
		{&googleapi.Error{Code: 500, Message: "Backend Error"}, failure.GenericFailure, true, "Backend Error"},
		{errors.New("connection reset"), failure.GenericFailure, true, "connection reset"},
	}
	for _, c := range cases {
		t.Run(string(c.kind)+"/"+c.message, func(t *testing.T) {
			assert := assert_.New(t)
			f := newFixture(t)
			f.api.uploadErr = c.err
			f.authenticate(t, "s1", time.Time{})
			src := f.completedDownload(t)

			j, _ := f.up.Upload(Request{DownloadJobID: src.ID, SessionID: "s1"})
			done := f.waitFinished(t, j.ID)
			assert.Equal(job.StatusError, done.Status)
			assert.Equal(c.kind, done.ErrorKind)
			assert.Equal(c.message, done.Error)
			_, err := f.sessions.GetToken("s1")
			assert.Equal(c.keepToken, err == nil)
		})
	}
}

func TestUploadViaLink(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.authenticate(t, "s1", time.Now().Add(time.Hour))

	j, err := f.up.UploadViaLink(LinkRequest{URL: "https://vimeo.com/123", Title: "Linked", Quality: "720p", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(job.KindDirectUpload, j.Kind)
	assert.Equal(job.StatusDownloading, j.Status)

	done := f.waitFinished(t, j.ID)
	require.Equal(t, job.StatusCompleted, done.Status, done.Error)
	assert.Equal("vid123", done.VideoID)
	assert.Equal(100.0, done.Progress)
	require.Len(t, f.api.uploads, 1)
	up := f.api.uploads[0]
	assert.Equal("Linked", up.video.Title)
	// Upload phase starts exactly halfway
	assert.Equal(50.0, up.progress)
	assert.Equal(job.StatusUploading, up.status)
	assert.Equal(f.settings.TempDir, filepath.Dir(filepath.Dir(up.path)))

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(f.settings.TempDir)
		return len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)
	entries, _ := os.ReadDir(f.settings.DownloadDir)
	assert.Empty(entries)
}

func TestUploadViaLink_SystemTempDir(t *testing.T) {
	assert := assert_.New(t)
	systemTemp := t.TempDir()
	t.Setenv("TMPDIR", systemTemp)
	f := newFixture(t)
	// No configured temp dir means the system one
	f.settings.TempDir = ""
	f.authenticate(t, "s1", time.Now().Add(time.Hour))

	j, err := f.up.UploadViaLink(LinkRequest{URL: "https://vimeo.com/123", SessionID: "s1"})
	require.NoError(t, err)
	done := f.waitFinished(t, j.ID)
	require.Equal(t, job.StatusCompleted, done.Status, done.Error)
	require.Len(t, f.api.uploads, 1)
	if runtime.GOOS != "windows" {
		assert.Equal(systemTemp, filepath.Dir(filepath.Dir(f.api.uploads[0].path)))
	}
	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(systemTemp)
		return len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUploadViaLink_UploadFails(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.api.uploadErr = &googleapi.Error{Code: 403, Message: "quota exceeded for today"}
	f.authenticate(t, "s1", time.Now().Add(time.Hour))

	j, err := f.up.UploadViaLink(LinkRequest{URL: "https://vimeo.com/123", SessionID: "s1"})
	require.NoError(t, err)
	done := f.waitFinished(t, j.ID)
	assert.Equal(failure.QuotaExceeded, done.ErrorKind)
	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(f.settings.TempDir)
		return len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUploadViaLink_Invalid(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	f.authenticate(t, "s1", time.Now().Add(time.Hour))

	_, err := f.up.UploadViaLink(LinkRequest{URL: "not-a-url", SessionID: "s1"})
	assert.ErrorIs(err, failure.InvalidInput)
	_, err = f.up.UploadViaLink(LinkRequest{URL: "https://vimeo.com/1", SessionID: "nobody"})
	assert.ErrorIs(err, failure.AuthRequired)
	assert.Empty(f.store.List())
}

func TestOAuthConfig(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)

	config, err := f.up.OAuthConfig("s1")
	require.NoError(t, err)
	assert.Equal("server-id", config.ClientID)

	assert.ErrorIs(f.up.SaveCredentials("s1", &session.Credentials{ClientID: "mine"}), failure.InvalidInput)
	require.NoError(t, f.up.SaveCredentials("s1", &session.Credentials{ClientID: "mine", ClientSecret: "shh"}))
	config, err = f.up.OAuthConfig("s1")
	require.NoError(t, err)
	assert.Equal("mine", config.ClientID)
	assert.Equal("http://localhost/cb", config.RedirectURL)

	url, err := f.up.AuthURL("s1", "state")
	assert.NoError(err)
	assert.Equal("mine?state", url)
}

func TestAuthFlow(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(f.up.CompleteAuth(ctx, "s1", "bad"), failure.AuthRequired)
	ok, _ := f.up.HasToken("s1")
	assert.False(ok)

	require.NoError(t, f.up.CompleteAuth(ctx, "s1", "good"))
	ok, _ = f.up.HasToken("s1")
	assert.True(ok)

	ch, err := f.up.Channel(ctx, "s1")
	assert.NoError(err)
	assert.Equal("My Channel", ch.Title)

	token, _, err := f.up.Token(ctx, "s1", true)
	assert.NoError(err)
	assert.Equal("refreshed", token.AccessToken)

	require.NoError(t, f.up.Disconnect("s1"))
	_, err = f.up.Channel(ctx, "s1")
	assert.ErrorIs(err, failure.AuthRequired)
}
