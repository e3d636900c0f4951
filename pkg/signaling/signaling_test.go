package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func echoAnswer(_ context.Context, offer core.Descriptor) (core.Descriptor, error) {
	return core.Descriptor{Type: core.DescriptorAnswer, SDP: offer.SDP}, nil
}

func TestExchange(t *testing.T) {
	var posts int32
	mux := http.NewServeMux()
	handler := Handler(echoAnswer, zerolog.Nop())
	mux.HandleFunc("/offer", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		assert.Equal(t, MimeJSON, r.Header.Get("Content-Type"))
		handler(w, r)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL + "/offer")
	answer, err := client.Exchange(context.Background(), core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP})
	require.Nil(t, err)
	require.Equal(t, core.Descriptor{Type: core.DescriptorAnswer, SDP: testSDP}, answer)
	require.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestExchangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", 500, "boom"},
		{"not found", 404, ""},
		{"bad json", 200, "{"},
		{"offer instead answer", 200, `{"type":"offer","sdp":"v=0\r\n"}`},
		{"empty sdp", 200, `{"type":"answer","sdp":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Exchange(context.Background(), core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP})
			require.ErrorIs(t, err, ErrSignaling)

			var serr *Error
			require.True(t, errors.As(err, &serr))
			if tt.status != 200 {
				assert.Equal(t, tt.status, serr.Status)
			} else {
				assert.Zero(t, serr.Status)
			}
		})
	}
}

func TestExchangeOpaqueAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sdp":"X","type":"answer"}`))
	}))
	defer srv.Close()

	answer, err := NewClient(srv.URL).Exchange(context.Background(), core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP})
	require.Nil(t, err)
	require.Equal(t, "X", answer.SDP)
}

func TestExchangeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Exchange(context.Background(), core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP})
	require.ErrorIs(t, err, ErrSignaling)
}

func TestExchangeCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL).Exchange(ctx, core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP})
	require.ErrorIs(t, err, ErrSignaling)
	require.NotNil(t, ctx.Err())
}

func TestHandler(t *testing.T) {
	handler := Handler(echoAnswer, zerolog.Nop())

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/offer", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/offer", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/offer", strings.NewReader(`{"type":"answer","sdp":"v=0"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/offer", strings.NewReader(`{"type":"offer","sdp":"hello"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	failing := Handler(func(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
		return core.Descriptor{}, errors.New("no camera")
	}, zerolog.Nop())

	w = httptest.NewRecorder()
	body := `{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`
	failing(w, httptest.NewRequest("POST", "/offer", strings.NewReader(body)))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeTransport struct {
	core.Transport
	local  *core.Descriptor
	gather chan struct{}
}

func (f *fakeTransport) CreateOffer() (core.Descriptor, error) {
	return core.Descriptor{Type: core.DescriptorOffer, SDP: testSDP}, nil
}

func (f *fakeTransport) SetLocalDescription(desc core.Descriptor) error {
	f.local = &desc
	return nil
}

func (f *fakeTransport) LocalDescription() *core.Descriptor { return f.local }

func (f *fakeTransport) GatheringComplete() <-chan struct{} { return f.gather }

type exchangeFunc func(ctx context.Context, offer core.Descriptor) (core.Descriptor, error)

func (f exchangeFunc) Exchange(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
	return f(ctx, offer)
}

func TestNegotiate(t *testing.T) {
	tr := &fakeTransport{gather: make(chan struct{})}
	close(tr.gather)

	answer, err := Negotiate(context.Background(), tr, exchangeFunc(echoAnswer))
	require.Nil(t, err)
	require.Equal(t, core.DescriptorAnswer, answer.Type)
	require.NotNil(t, tr.local)

	// gathering never completes
	tr = &fakeTransport{gather: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = Negotiate(ctx, tr, exchangeFunc(echoAnswer))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
