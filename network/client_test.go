package network

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libbabel-go/storage"
)

const searchPage = `<html><body>
<div class="location">
  <h3>Exact match:</h3>
  <a class="intext" onclick="postform('%s','%s','%s','%s','%s')">Title</a>
</div></body></html>`

const bookPage = `<html><body><div><pre id="textblock">%s</pre></div></body></html>`

// fakeLibrary serves search.cgi and book.cgi from an in-memory page map.
type fakeLibrary struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{pages: make(map[string]string), hits: make(map[string]int)}
}

func (f *fakeLibrary) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch r.URL.Path {
	case "/search.cgi":
		text := r.PostForm.Get("find")
		addr := storage.DeriveAddress(text)
		f.pages[key(addr)] = text
		fmt.Fprintf(w, searchPage, addr.Hex, itoa(addr.Wall), itoa(addr.Shelf), fmt.Sprintf("%02d", addr.Volume), itoa(addr.Page))
	case "/book.cgi":
		k := r.PostForm.Get("hex") + "/" + r.PostForm.Get("wall") + "/" + r.PostForm.Get("shelf") + "/" +
			r.PostForm.Get("volume") + "/" + r.PostForm.Get("page")
		text, ok := f.pages[k]
		if !ok {
			fmt.Fprint(w, `<html><body>nothing here</body></html>`)
			return
		}
		// Wrap like the real site does.
		var wrapped string
		for i := 0; i < len(text); i += 80 {
			wrapped += text[i:min(i+80, len(text))] + "\n"
		}
		fmt.Fprintf(w, bookPage, wrapped)
	default:
		http.NotFound(w, r)
	}
}

func key(a storage.Address) string {
	return a.Hex + "/" + itoa(a.Wall) + "/" + itoa(a.Shelf) + "/" + itoa(a.Volume) + "/" + itoa(a.Page)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{URL: server.URL, Timeout: 5 * time.Second})
}

func TestClientPutGet(t *testing.T) {
	lib := newFakeLibrary()
	client := newTestClient(t, lib)
	ctx := context.Background()

	text := "the quick brown fox, jumps over the lazy dog. "
	for len(text) < 500 {
		text += text
	}

	addr, err := client.Put(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, storage.DeriveAddress(text), addr, "zero-padded volume must parse")

	got, err := client.Get(ctx, addr)
	require.NoError(t, err)
	assert.NotEqual(t, text, got, "page text arrives line-wrapped")
	assert.Equal(t, text, stripNewlines(got))
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func TestClientPut_Headers(t *testing.T) {
	var gotUA, gotCT string
	client := NewClient(ClientConfig{UserAgent: "custom/1"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		fmt.Fprintf(w, searchPage, "abc", "1", "2", "3", "4")
	}))
	defer server.Close()
	client.baseURL = server.URL

	addr, err := client.Put(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, storage.Address{Hex: "abc", Wall: 1, Shelf: 2, Volume: 3, Page: 4}, addr)
	assert.Equal(t, "custom/1", gotUA)
	assert.Equal(t, "application/x-www-form-urlencoded", gotCT)
}

func TestClientPut_RejectsInvalidText(t *testing.T) {
	lib := newFakeLibrary()
	client := newTestClient(t, lib)

	_, err := client.Put(context.Background(), "Hello!")
	assert.ErrorIs(t, err, storage.ErrInvalidText)

	long := make([]byte, storage.MaxPageSize+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = client.Put(context.Background(), string(long))
	assert.ErrorIs(t, err, storage.ErrTextTooLong)
	assert.Zero(t, lib.hits["/search.cgi"], "invalid text never reaches the store")
}

func TestClientGet_RejectsInvalidAddress(t *testing.T) {
	client := newTestClient(t, newFakeLibrary())
	_, err := client.Get(context.Background(), storage.Address{Hex: "abc", Wall: 5, Shelf: 1, Volume: 1, Page: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidAddress)
}

func TestClient_ResponseErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", ErrRateLimited},
		{"server error", http.StatusBadGateway, "bad gateway", ErrConnectionFailed},
		{"no location", http.StatusOK, `<html><body>no match</body></html>`, ErrNoResult},
		{"no link", http.StatusOK, `<div class="location"><p>x</p></div>`, ErrNoResult},
		{"no onclick", http.StatusOK, `<div class="location"><a class="intext">x</a></div>`, ErrInvalidResponse},
		{"bad onclick", http.StatusOK, `<div class="location"><a class="intext" onclick="go()">x</a></div>`, ErrInvalidResponse},
		{"bad coordinate", http.StatusOK, fmt.Sprintf(searchPage, "abc", "x", "1", "1", "1"), ErrInvalidResponse},
		{"out of range", http.StatusOK, fmt.Sprintf(searchPage, "abc", "9", "1", "1", "1"), ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			_, err := client.Put(context.Background(), "abc")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClientGet_NoTextblock(t *testing.T) {
	client := newTestClient(t, newFakeLibrary())
	_, err := client.Get(context.Background(), storage.Address{Hex: "abc", Wall: 1, Shelf: 1, Volume: 1, Page: 1})
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestClient_ConnectionError(t *testing.T) {
	client := NewClient(ClientConfig{URL: "http://localhost:1"})
	_, err := client.Put(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, client.Ping(context.Background()), ErrConnectionFailed)
}

func TestClient_ContextCanceled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Put(ctx, "abc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientPing(t *testing.T) {
	client := newTestClient(t, newFakeLibrary())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestParseTextblock_Entities(t *testing.T) {
	got, err := parseTextblock([]byte(`<pre id="textblock">a&#32;b<span>c</span>.</pre>`))
	require.NoError(t, err)
	assert.Equal(t, "a bc.", got)
}

func TestMockTextStore(t *testing.T) {
	mem := storage.NewMemStore()
	m := &MockTextStore{PutFn: mem.Put, GetFn: mem.Get}
	addr, err := m.Put(context.Background(), "abc")
	require.NoError(t, err)
	got, err := m.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}
