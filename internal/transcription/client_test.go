package transcription

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string, sizeLimit int64) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		SizeLimit:    sizeLimit,
		Timeout:      2 * time.Second,
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 20,
	})
}

func TestTranscribePublishPollDownload(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://cdn.example/c-1.wav", r.FormValue("callRecordingLink"))
		assert.Equal(t, "PNS", r.FormValue("callType"))
		fmt.Fprint(w, `{"Code":200,"Status":"ok","Data":{"MediaId":"m-1","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m-1", r.URL.Query().Get("mediaId"))
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"Code":200,"Data":{"Status":"Processing"}}`)
			return
		}
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionTextURL":"%s/text/m-1"}}`, srv.URL)
	})
	mux.HandleFunc("/text/m-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "the pipe under my sink burst this morning")
	})

	text, err := testClient(srv.URL, 0).Transcribe(context.Background(), "https://cdn.example/c-1.wav")
	require.NoError(t, err)
	assert.Equal(t, "the pipe under my sink burst this morning", text)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestTranscribeUsesCachedResult(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionURL":"%s/text/cached"}}`, srv.URL)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		t.Error("poll should not run when publish returns a transcript URL")
	})
	mux.HandleFunc("/text/cached", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "cached transcript")
	})

	text, err := testClient(srv.URL, 0).Transcribe(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, "cached transcript", text)
}

func TestTranscribeReportsEngineFailure(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Data":{"MediaId":"m-1","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Data":{"Status":"Failed"},"Reason":"audio unreadable"}`)
	})

	_, err := testClient(srv.URL, 0).Transcribe(context.Background(), "any")
	assert.ErrorIs(t, err, ErrTranscriptionFailed)
}

func TestDownloadSizeLimit(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	big := strings.Repeat("x", 2048)
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionURL":"%s/text/big"}}`, srv.URL)
	})
	mux.HandleFunc("/text/big", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, big)
	})

	_, err := testClient(srv.URL, 1024).Transcribe(context.Background(), "any")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestTranscribePublishRejection(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":403,"Reason":"quota exceeded"}`)
	})

	_, err := testClient(srv.URL, 0).Transcribe(context.Background(), "any")
	require.ErrorIs(t, err, ErrTranscriptionFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestTranscribeUnconfiguredGateway(t *testing.T) {
	_, err := NewClient(Config{}).Transcribe(context.Background(), "any")
	assert.ErrorIs(t, err, ErrTranscriptionFailed)
}

func TestMockProvider(t *testing.T) {
	text, err := (&Mock{}).Transcribe(context.Background(), "any")
	require.NoError(t, err)
	assert.Contains(t, text, "kitchen sink")
}
