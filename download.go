package video_downloader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	// Some CDNs refuse requests without a browser-like User-Agent.
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultHeaderTimeout = 30 * time.Second
)

// NewHTTPClient builds the client used for direct file downloads: a cookie jar (some hosts set a session cookie on a
// redirect), and a bound on waiting for response headers but not on the body.
func NewHTTPClient() *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: DefaultHeaderTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ResponseHeaderTimeout: DefaultHeaderTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

type Download interface {
	// AddDownloadedBytes increases how many bytes have been successfully downloaded so far.
	AddDownloadedBytes(n int64)

	// AddExpectedBytes increases how many bytes are expected to be downloaded.
	AddExpectedBytes(n int64)

	// Cancel the Download, stopping any in-progress I/O activity.
	Cancel()

	// Context is the cancellable context of this Download.
	Context() context.Context

	CreateFile(filename string) (io.WriteCloser, error)

	// Path gives the full path that a filename is saved to.
	Path(filename string) string

	// Progress returns the downloaded and expected bytes of the download. Expected is 0 when unknown.
	Progress() (int64, int64)

	// SaveHTTPRequest will execute the http.Request with Context() and then download the resulting stream like SaveStream.
	SaveHTTPRequest(filename string, req *http.Request) error

	// SaveStream will download the stream to the named file, calling AddDownloadedBytes as necessary.
	SaveStream(filename string, stream io.Reader) error

	// SaveURL will make a GET request to the URL and then download the resulting stream like SaveStream.
	SaveURL(filename string, url string) error

	// Write will ignore the data but will send the byte count to AddDownloadedBytes. Allows progress tracking using
	// io.MultiWriter (but ensure the Download is the last writer to avoid counting failed writes).
	Write(p []byte) (n int, err error)
}

type download struct {
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	client           *http.Client
	userAgent        string
	progressCallback func(int64, int64)
	targetDir        string
	expectedBytes    int64
	downloadedBytes  int64
}

func (d *download) AddDownloadedBytes(n int64) {
	d.mu.Lock()
	d.downloadedBytes += n
	d.mu.Unlock()
	d.notify()
}

func (d *download) AddExpectedBytes(n int64) {
	d.mu.Lock()
	d.expectedBytes += n
	d.mu.Unlock()
	d.notify()
}

func (d *download) notify() {
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

func (d *download) Cancel() {
	d.cancel()
}

func (d *download) Context() context.Context {
	return d.ctx
}

func (d *download) CreateFile(filename string) (io.WriteCloser, error) {
	targetPath := d.Path(filename)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0775); err != nil {
		return nil, err
	}
	return os.Create(targetPath)
}

func (d *download) Path(filename string) string {
	return filepath.Join(d.targetDir, filepath.Base(filename))
}

func (d *download) Progress() (int64, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloadedBytes, d.expectedBytes
}

func (d *download) SaveHTTPRequest(filename string, req *http.Request) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	req = req.WithContext(d.Context())
	if req.Header.Get("User-Agent") == "" && d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength > 0 {
		d.AddExpectedBytes(resp.ContentLength)
	}
	return d.SaveStream(filename, resp.Body)
}

func (d *download) SaveStream(filename string, stream io.Reader) error {
	f, err := d.CreateFile(filename)
	if err != nil {
		return fmt.Errorf("failed to open target file: %w", err)
	}
	_, err = io.Copy(io.MultiWriter(f, d), NewContextReader(d.ctx, stream))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	return nil
}

func (d *download) SaveURL(filename string, url string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return d.SaveHTTPRequest(filename, req)
}

func (d *download) Write(p []byte) (n int, err error) {
	n = len(p)
	d.AddDownloadedBytes(int64(n))
	return n, nil
}

// HTTPStatusError is a non-2xx response to a direct download.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}

type DownloadBuilder interface {
	Build() (Download, error)
	WithContext(ctx context.Context) DownloadBuilder
	WithHTTPClient(client *http.Client) DownloadBuilder
	WithProgressCallback(f func(downloaded int64, expected int64)) DownloadBuilder
	WithTargetDir(dir string) DownloadBuilder
	WithUserAgent(ua string) DownloadBuilder
}

type downloadBuilder struct {
	ctx              context.Context
	client           *http.Client
	progressCallback func(int64, int64)
	targetDir        string
	userAgent        string
}

func NewDownloadBuilder() DownloadBuilder {
	return &downloadBuilder{
		ctx:       context.Background(),
		targetDir: ".",
		userAgent: DefaultUserAgent,
	}
}

func (b *downloadBuilder) Build() (Download, error) {
	d := download{}
	d.ctx, d.cancel = context.WithCancel(b.ctx)
	d.client = b.client
	if d.client == nil {
		d.client = NewHTTPClient()
	}
	d.userAgent = b.userAgent
	d.progressCallback = b.progressCallback
	d.targetDir = b.targetDir
	return &d, nil
}

func (b *downloadBuilder) WithContext(ctx context.Context) DownloadBuilder {
	b.ctx = ctx
	return b
}

func (b *downloadBuilder) WithHTTPClient(client *http.Client) DownloadBuilder {
	b.client = client
	return b
}

func (b *downloadBuilder) WithProgressCallback(f func(int64, int64)) DownloadBuilder {
	b.progressCallback = f
	return b
}

func (b *downloadBuilder) WithTargetDir(dir string) DownloadBuilder {
	b.targetDir = dir
	return b
}

func (b *downloadBuilder) WithUserAgent(ua string) DownloadBuilder {
	b.userAgent = ua
	return b
}
