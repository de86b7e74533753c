package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/skindx/skindx/internal/domain/apikey"
	"github.com/skindx/skindx/internal/domain/cases"
	"github.com/skindx/skindx/internal/domain/doctor"
	"github.com/skindx/skindx/internal/domain/patient"
	"github.com/skindx/skindx/internal/platform/auth"
	"github.com/skindx/skindx/internal/platform/blobstore"
	"github.com/skindx/skindx/internal/platform/mldiag"
)

// testApp wires the full HTTP stack against the shared test database the
// same way the serve command does. Tests drive it through ServeHTTP and can
// reach the services directly for fixtures the API does not expose (admin
// accounts, blob assertions).
type testApp struct {
	e       *echo.Echo
	tokens  *auth.TokenIssuer
	blobs   blobstore.BlobStore
	keys    *apikey.Service
	doctors *doctor.Service
}

// newTestApp builds a testApp. diagURL points the diagnosis client at a fake
// classifier; empty disables the diagnosis call entirely.
func newTestApp(t *testing.T, diagURL string) *testApp {
	t.Helper()
	pool := globalDB.Pool

	tokens := auth.NewTokenIssuer([]byte("integration-secret"), time.Hour)
	blobs := blobstore.NewPGBlobStore(pool, blobstore.DefaultMaxFileSize)

	var diagnoser mldiag.Diagnoser
	if diagURL != "" {
		diagnoser = mldiag.NewClient(diagURL, 5*time.Second)
	}

	keySvc := apikey.NewService(apikey.NewRepoPG(pool))
	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), keySvc, tokens, pool, 4)
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	caseSvc := cases.NewService(cases.NewRepoPG(pool), patientSvc, keySvc, blobs, diagnoser, pool, zerolog.Nop())

	e := echo.New()
	e.HideBanner = true
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Tokens:  tokens,
		Skipper: auth.AuthSkipper,
		Verify: func(ctx context.Context, doctorID string) error {
			id, err := uuid.Parse(doctorID)
			if err != nil {
				return err
			}
			_, err = doctorSvc.GetByID(ctx, id)
			return err
		},
	}))

	api := e.Group("")
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	cases.NewHandler(caseSvc).RegisterRoutes(api)

	return &testApp{
		e:       e,
		tokens:  tokens,
		blobs:   blobs,
		keys:    keySvc,
		doctors: doctorSvc,
	}
}

// doJSON sends a JSON request through the application and returns the
// recorded response. An empty token omits the Authorization header.
func (a *testApp) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// doGet sends a GET request through the application.
func (a *testApp) doGet(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// uploadCase sends a multipart POST /new_case with the given image and notes.
func (a *testApp) uploadCase(t *testing.T, token string, patientNumber int64, notes []string, fileName string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("patient_number", fmt.Sprintf("%d", patientNumber)); err != nil {
		t.Fatalf("write patient_number field: %v", err)
	}
	for _, note := range notes {
		if err := mw.WriteField("case_notes", note); err != nil {
			t.Fatalf("write case_notes field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/new_case", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals a JSON response body into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

// registerDoctor registers a doctor through the API and returns the response
// body. Fails the test on any status other than 201.
func (a *testApp) registerDoctor(t *testing.T, email, name, password string) map[string]interface{} {
	t.Helper()
	rec := a.doJSON(t, http.MethodPost, "/register-doctor", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register doctor %s: status %d, body %s", email, rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)
}

// login authenticates through the API and returns the bearer token.
func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.doJSON(t, http.MethodPost, "/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", email, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: no access_token in %v", email, body)
	}
	return token
}

// registerPatient registers a patient through the API. Fails the test on any
// status other than 201.
func (a *testApp) registerPatient(t *testing.T, token string, patientNumber int64, name string) map[string]interface{} {
	t.Helper()
	rec := a.doJSON(t, http.MethodPost, "/register-patient", token, map[string]interface{}{
		"patient_number": patientNumber,
		"name":           name,
		"date_of_birth":  "1990-06-15",
		"gender":         "male",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register patient %d: status %d, body %s", patientNumber, rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)
}

// fakeDiagnosisServer returns an httptest server that answers every upload
// with the given probability pair in the classifier's wire format.
func fakeDiagnosisServer(t *testing.T, malignant, benign float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart body", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"diagnosis":[{"malignant":%g,"benign":%g}]}`, malignant, benign)
	}))
}
