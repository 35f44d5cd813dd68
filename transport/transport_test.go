package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/progress"
)

func TestDoJSONRoundTrip(t *testing.T) {
	var gotContentType, gotCustom string
	var gotBody map[string]interface{}
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Custom")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"fileId": "4_z27", "fileName": "hello.txt"}`)
	}))
	defer svr.Close()

	client := NewClient(Config{DefaultHeaders: map[string]string{"X-Custom": "default"}})
	resp, err := client.Do(context.Background(), RequestSpec{
		Method: http.MethodPost,
		URL:    svr.URL,
		Body:   JSONBody(map[string]string{"bucketId": "b1"}),
		Decode: DecodeJSON,
	})

	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "default", gotCustom)
	assert.Equal(t, "b1", gotBody["bucketId"])
	assert.Equal(t, 200, resp.Status)
	require.NotNil(t, resp.JSONObject())
	assert.Equal(t, "4_z27", resp.JSONObject()["fileId"])
}

func TestDoPerRequestHeadersWin(t *testing.T) {
	var got string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer svr.Close()

	client := NewClient(Config{DefaultHeaders: map[string]string{"Authorization": "default-token"}})
	_, err := client.Do(context.Background(), RequestSpec{
		URL:     svr.URL,
		Headers: map[string]string{"Authorization": "per-request-token"},
	})

	require.NoError(t, err)
	assert.Equal(t, "per-request-token", got)
}

func TestDoRelativeURLJoinsBase(t *testing.T) {
	var gotPath string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer svr.Close()

	client := NewClient(Config{BaseURL: svr.URL + "/"})
	_, err := client.Do(context.Background(), RequestSpec{URL: "/b2api/v2/b2_list_buckets"})

	require.NoError(t, err)
	assert.Equal(t, "/b2api/v2/b2_list_buckets", gotPath)
}

func TestDoRejectsBodyOnGet(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Do(context.Background(), RequestSpec{
		Method: http.MethodGet,
		URL:    "https://example.invalid",
		Body:   TextBody("nope"),
	})

	var classified *apierror.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apierror.KindValidation, classified.Kind)
}

func TestDoTimeout(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer svr.Close()

	client := NewClient(Config{})
	_, err := client.Do(context.Background(), RequestSpec{
		URL:     svr.URL,
		Timeout: 30 * time.Millisecond,
	})

	var classified *apierror.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apierror.KindTimeout, classified.Kind)
	assert.True(t, classified.Retryable)
}

func TestDoNetworkError(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Do(context.Background(), RequestSpec{URL: "http://127.0.0.1:1"})

	var classified *apierror.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apierror.KindNetwork, classified.Kind)
	assert.True(t, classified.NetworkError)
	assert.True(t, classified.Retryable)
}

func TestDoServiceErrorShaping(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status": 400, "code": "bad_request", "message": "Invalid bucketId"}`)
	}))
	defer svr.Close()

	client := NewClient(Config{})
	_, err := client.Do(context.Background(), RequestSpec{URL: svr.URL, Decode: DecodeJSON})

	var classified *apierror.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apierror.KindClient, classified.Kind)
	assert.Equal(t, "bad_request", classified.Code)
	assert.Equal(t, "Invalid bucketId", classified.Message)
	assert.Equal(t, 400, classified.Status)
	assert.False(t, classified.Retryable)
	require.NotNil(t, classified.Response)
	assert.Equal(t, 400, classified.Response.Status)
}

func TestDoDecodeAuto(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		check       func(t *testing.T, resp *Response)
	}{
		{
			name:        "json content type",
			contentType: "application/json; charset=utf-8",
			body:        `{"ok": true}`,
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, DecodeJSON, resp.Decode)
				assert.Equal(t, true, resp.JSONObject()["ok"])
			},
		},
		{
			name:        "json content type with broken body falls back to text",
			contentType: "application/json",
			body:        `{not json`,
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, DecodeText, resp.Decode)
				assert.Equal(t, `{not json`, resp.Text)
			},
		},
		{
			name:        "text content type",
			contentType: "text/plain",
			body:        "hello",
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, DecodeText, resp.Decode)
				assert.Equal(t, "hello", resp.Text)
			},
		},
		{
			name:        "binary content type",
			contentType: "application/octet-stream",
			body:        "\x00\x01\x02",
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, DecodeBytes, resp.Decode)
				assert.Equal(t, []byte{0, 1, 2}, resp.Raw)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				fmt.Fprint(w, tt.body)
			}))
			defer svr.Close()

			client := NewClient(Config{})
			resp, err := client.Do(context.Background(), RequestSpec{URL: svr.URL, Decode: DecodeAuto})
			require.NoError(t, err)
			tt.check(t, resp)
		})
	}
}

func TestDoStreamModeCallerOwnsBody(t *testing.T) {
	payload := strings.Repeat("z", 32*1024)
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer svr.Close()

	client := NewClient(Config{})
	resp, err := client.Do(context.Background(), RequestSpec{URL: svr.URL, Decode: DecodeStream})
	require.NoError(t, err)
	require.NotNil(t, resp.Body)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, payload, string(data))
}

func TestDoDownloadProgress(t *testing.T) {
	payload := strings.Repeat("d", 256*1024)
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		fmt.Fprint(w, payload)
	}))
	defer svr.Close()

	var events []progress.Event
	client := NewClient(Config{ProgressInterval: time.Nanosecond})
	resp, err := client.Do(context.Background(), RequestSpec{
		URL:    svr.URL,
		Decode: DecodeBytes,
		DownloadObserver: progress.ObserverFunc(func(e progress.Event) {
			events = append(events, e)
		}),
	})

	require.NoError(t, err)
	assert.Len(t, resp.Raw, len(payload))
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, int64(len(payload)), final.Transferred)
	assert.Equal(t, 1.0, final.Fraction)
}

func TestDoUploadProgress(t *testing.T) {
	payload := make([]byte, 1024*1024)
	var received int
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = len(data)
	}))
	defer svr.Close()

	var events []progress.Event
	client := NewClient(Config{ProgressInterval: time.Nanosecond})
	_, err := client.Do(context.Background(), RequestSpec{
		Method: http.MethodPost,
		URL:    svr.URL,
		Body:   BytesBody(payload),
		UploadObserver: progress.ObserverFunc(func(e progress.Event) {
			events = append(events, e)
		}),
	})

	require.NoError(t, err)
	assert.Equal(t, len(payload), received)
	require.NotEmpty(t, events)
	assert.Equal(t, 1.0, events[len(events)-1].Fraction)
}

func TestChunkedReaderCapsReads(t *testing.T) {
	data := strings.Repeat("c", 1024)
	r := newChunkedReader(strings.NewReader(data), 100)

	buf := make([]byte, 1024)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, len(data)-100, len(out))
}

func TestBodySize(t *testing.T) {
	tests := []struct {
		name string
		body *Body
		want int64
	}{
		{name: "nil body", body: nil, want: 0},
		{name: "text", body: TextBody("héllo"), want: int64(len("héllo"))},
		{name: "bytes", body: BytesBody(make([]byte, 42)), want: 42},
		{name: "stream with length", body: StreamBody(strings.NewReader("xx"), 2), want: 2},
		{name: "stream without length", body: StreamBody(strings.NewReader("xx"), 0), want: 0},
		{name: "form is unknown", body: FormBody(nil), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.body.Size())
		})
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer svr.Close()

	client := NewClient(Config{Metrics: m})
	_, err := client.Do(context.Background(), RequestSpec{URL: svr.URL + "/ok"})
	require.NoError(t, err)
	_, err = client.Do(context.Background(), RequestSpec{URL: svr.URL + "/fail"})
	require.Error(t, err)

	assert.Equal(t, int64(2), m.RequestCount())
	assert.Equal(t, int64(1), m.ErrorCount())
	assert.Greater(t, m.TotalTime(), time.Duration(0))
	assert.Empty(t, m.SlowRequests())
}
