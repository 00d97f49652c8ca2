package store

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/richardartoul-symcache/symcache/symkeys"
)

// MicrosoftHttpStore extends HttpStore: on a 404 it races two probes
// (spec §4.3) instead of returning not-found immediately — a redirect
// pointer file and a compressed-blob ("_"-suffixed) key.
type MicrosoftHttpStore struct {
	*HttpStore
	cabReader symkeys.CabReader
}

// NewMicrosoftHttpStore wraps baseURL with the Microsoft compound-query
// extension. cabReader defaults to symkeys.KlauspostCabReader{} when nil.
func NewMicrosoftHttpStore(baseURL string, client *http.Client, logger *slog.Logger, cabReader symkeys.CabReader) *MicrosoftHttpStore {
	if cabReader == nil {
		cabReader = symkeys.KlauspostCabReader{}
	}
	base := NewHttpStore(baseURL, client, logger)
	base.userAgent = "symcache/microsoft-compound-query"
	m := &MicrosoftHttpStore{HttpStore: base, cabReader: cabReader}
	base.additionalRequests = m.makeAdditionalRequests
	return m
}

// makeAdditionalRequests races the redirect-pointer probe against the
// compressed-blob probe and returns the first hit, or nil if both miss.
func (m *MicrosoftHttpStore) makeAdditionalRequests(ctx context.Context, key string, queryTime time.Time) (*SearchResult, error) {
	r, err := race(ctx,
		func(ctx context.Context) (*SearchResult, error) { return m.pointerProbe(ctx, key, queryTime) },
		func(ctx context.Context) (*SearchResult, error) { return m.compressedBlobProbe(ctx, key, queryTime) },
	)
	return r, err
}

func (m *MicrosoftHttpStore) baseDir(key string) string {
	dir := path.Dir(key)
	if dir == "." {
		return ""
	}
	return dir
}

func (m *MicrosoftHttpStore) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", m.userAgent)
	return m.client.Do(req)
}

func (m *MicrosoftHttpStore) pointerProbe(ctx context.Context, key string, queryTime time.Time) (*SearchResult, error) {
	url := m.name
	if dir := m.baseDir(key); dir != "" {
		url += "/" + dir
	}
	url += "/file.ptr"

	resp, err := m.get(ctx, url)
	if err != nil {
		return nil, nil // a probe failure is a miss for this probe, not an overall error
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}

	ptr, err := symkeys.ParsePointerFile(body)
	if err != nil || ptr.Path == "" {
		return nil, nil
	}

	if _, err := os.Stat(ptr.Path); err != nil {
		return nil, nil
	}

	identity := m.name + "/" + key
	resultPath := ptr.Path
	result := makeResult(func() (io.ReadCloser, error) {
		return os.Open(resultPath)
	}, OutcomeSuccess, &identity, resultPath, queryTime, m.name, nil)
	return &result, nil
}

func (m *MicrosoftHttpStore) compressedBlobProbe(ctx context.Context, key string, queryTime time.Time) (*SearchResult, error) {
	if key == "" {
		return nil, nil
	}
	compressedKey := key[:len(key)-1] + "_"
	url := m.name + "/" + compressedKey

	resp, err := m.get(ctx, url)
	if err != nil {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, nil
	}

	identity := m.name + "/" + key
	body := resp.Body
	cabReader := m.cabReader
	result := makeResult(func() (io.ReadCloser, error) {
		decompressed, err := cabReader.Decompress(body)
		if err != nil {
			body.Close()
			return nil, err
		}
		return &decompressedBlob{decompressed: decompressed, body: body}, nil
	}, OutcomeSuccess, &identity, url, queryTime, m.name, nil)
	return &result, nil
}

// decompressedBlob keeps the HTTP response body open for as long as the
// flate reader wrapping it is in use; Close releases both. Closing body
// before the caller reads from decompressed would fail every read with
// "http: read on closed response body", since flate.NewReader does no
// eager I/O.
type decompressedBlob struct {
	decompressed io.ReadCloser
	body         io.ReadCloser
}

func (d *decompressedBlob) Read(p []byte) (int, error) {
	return d.decompressed.Read(p)
}

func (d *decompressedBlob) Close() error {
	err := d.decompressed.Close()
	if cerr := d.body.Close(); err == nil {
		err = cerr
	}
	return err
}
