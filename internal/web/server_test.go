package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
	"github.com/JonMunkholm/TaxiETL/internal/export"
)

type fakeRunner struct {
	body     string
	name     string
	dupPath  string
	result   *core.RunResult
	runErr   error
	count    int64
	countErr error
	limiter  *core.RunLimiter
}

func (f *fakeRunner) RunReader(_ context.Context, name string, r io.Reader, dupPath string) (*core.RunResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body, f.name, f.dupPath = string(data), name, dupPath
	return f.result, f.runErr
}

func (f *fakeRunner) CountTrips(context.Context) (int64, error) { return f.count, f.countErr }

func (f *fakeRunner) Limiter() *core.RunLimiter {
	if f.limiter == nil {
		f.limiter = core.NewRunLimiter(1, time.Millisecond)
	}
	return f.limiter
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Port: 8080, MaxUploadSize: 1 << 20}
}

func uploadRequest(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeRunner{}, testServerConfig(), "dups.csv")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleRun(t *testing.T) {
	runner := &fakeRunner{result: &core.RunResult{RunID: "r-1", Kept: 3, Duplicates: 1, Rejected: 1}}
	s := NewServer(runner, testServerConfig(), "out/dups.csv")

	rec := serve(s, uploadRequest(t, "file", "trips.csv", "a,b\n1,2\n"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "trips.csv", runner.name)
	assert.Equal(t, "a,b\n1,2\n", runner.body)
	assert.Equal(t, "out/dups.csv", runner.dupPath)

	var got core.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r-1", got.RunID)
	assert.Equal(t, 3, got.Kept)
}

func TestHandleRun_MissingFile(t *testing.T) {
	s := NewServer(&fakeRunner{}, testServerConfig(), "dups.csv")
	rec := serve(s, uploadRequest(t, "other", "trips.csv", "x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UPLOAD_INVALID", body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestHandleRun_TooLarge(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxUploadSize = 64
	s := NewServer(&fakeRunner{}, cfg, "dups.csv")

	rec := serve(s, uploadRequest(t, "file", "trips.csv", strings.Repeat("x", 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"busy", core.ErrRunBusy, http.StatusTooManyRequests, "RUN_BUSY"},
		{"source", fmt.Errorf("%w at row 3: bad quote", core.ErrSourceRead), http.StatusUnprocessableEntity, "SOURCE_READ"},
		{"load", fmt.Errorf("%w: connection reset", core.ErrLoad), http.StatusBadGateway, "LOAD_FAILED"},
		{"duplicates", fmt.Errorf("%w: /ro/dups.csv", core.ErrDuplicatesNotWritable), http.StatusInternalServerError, "DUPLICATES_NOT_WRITABLE"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "RUN_TIMEOUT"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeRunner{runErr: tt.err}, testServerConfig(), "dups.csv")
			rec := serve(s, uploadRequest(t, "file", "trips.csv", "x"))

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusTooManyRequests {
				assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestHandleCount(t *testing.T) {
	s := NewServer(&fakeRunner{count: 1234}, testServerConfig(), "dups.csv")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/trips/count", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1234}`, rec.Body.String())

	s = NewServer(&fakeRunner{countErr: fmt.Errorf("%w: gone", core.ErrCount)}, testServerConfig(), "dups.csv")
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/trips/count", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleRunStatus(t *testing.T) {
	s := NewServer(&fakeRunner{}, testServerConfig(), "dups.csv")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":0,"available":1,"max_concurrent":1}`, rec.Body.String())
}

func TestHandleRunStatus_ListsActiveRun(t *testing.T) {
	runner := &fakeRunner{}
	started := time.Date(2023, 3, 1, 7, 30, 0, 0, time.UTC)
	release, err := runner.Limiter().Acquire(context.Background(), core.ActiveRun{RunID: "run-1", Input: "trips.csv", StartedAt: started})
	require.NoError(t, err)
	defer release()

	s := NewServer(runner, testServerConfig(), "dups.csv")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"active": 1,
		"available": 0,
		"max_concurrent": 1,
		"runs": [{"run_id": "run-1", "input": "trips.csv", "started_at": "2023-03-01T07:30:00Z"}]
	}`, rec.Body.String())
}

// memLoader keeps loaded trips in memory.
type memLoader struct{ trips []core.Trip }

func (m *memLoader) BulkLoad(_ context.Context, trips []core.Trip) (int64, error) {
	m.trips = append(m.trips, trips...)
	return int64(len(trips)), nil
}

func (m *memLoader) CountTrips(context.Context) (int64, error) { return int64(len(m.trips)), nil }

func TestHandleRun_EndToEnd(t *testing.T) {
	loader := &memLoader{}
	svc, err := core.NewService(loader, export.DuplicateFile{}, core.ServiceOptions{
		Timezone:          core.DefaultSourceZone,
		MaxConcurrentRuns: 1,
		MaxWait:           time.Second,
		Now:               func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	dupPath := filepath.Join(t.TempDir(), "dups.csv")
	s := NewServer(svc, testServerConfig(), dupPath)

	csv := strings.Join([]string{
		"tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance,store_and_fwd_flag,PULocationID,DOLocationID,fare_amount,tip_amount",
		"01/15/2023 10:00:00 AM,01/15/2023 10:20:00 AM,1,2.5,N,100,200,12.50,2.00",
		"01/15/2023 10:00:00 AM,01/15/2023 10:20:00 AM,1,3.0,N,101,201,13.00,1.00",
		"01/15/2023 11:00:00 AM,01/15/2023 11:10:00 AM,11,1.0,N,100,200,8.00,0",
	}, "\n") + "\n"

	rec := serve(s, uploadRequest(t, "file", "trips.csv", csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got core.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.RowsRead)
	assert.Equal(t, 1, got.Kept)
	assert.Equal(t, 1, got.Duplicates)
	assert.Equal(t, 1, got.Rejected)
	assert.EqualValues(t, 1, got.TableCount)
	assert.Len(t, loader.trips, 1)

	data, err := os.ReadFile(dupPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}
