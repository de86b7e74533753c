package integration

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

// testImage builds a deterministic PNG-tagged payload of n bytes so uploads
// can be compared byte for byte after a round trip through the store.
func testImage(n int) []byte {
	img := make([]byte, n)
	copy(img, "\x89PNG\r\n\x1a\n")
	for i := 8; i < n; i++ {
		img[i] = byte(i * 31)
	}
	return img
}

func TestCaseLifecycle(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	diag := fakeDiagnosisServer(t, 0.82, 0.18)
	defer diag.Close()
	app := newTestApp(t, diag.URL)

	app.registerDoctor(t, "derma@clinic.example", "Dana Osei", "doctor-pass")
	token := app.login(t, "derma@clinic.example", "doctor-pass")
	app.registerPatient(t, token, 12345, "Joana Prado")

	image := testImage(4096)

	var caseID string
	t.Run("Create", func(t *testing.T) {
		rec := app.uploadCase(t, token, 12345, []string{"rash"}, "lesion.png", image)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if got := body["message"]; got != "Case created successfully." {
			t.Errorf("message = %v", got)
		}
		caseID, _ = body["case_id"].(string)
		if _, err := uuid.Parse(caseID); err != nil {
			t.Fatalf("case_id %q is not a UUID: %v", caseID, err)
		}
	})

	t.Run("Fetch", func(t *testing.T) {
		rec := app.doGet(t, "/cases/"+caseID, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)

		notes, _ := body["notes"].([]interface{})
		if len(notes) != 1 || notes[0] != "rash" {
			t.Errorf("notes = %v, want [rash]", body["notes"])
		}

		diagnosis, _ := body["diagnosis"].(map[string]interface{})
		if diagnosis == nil {
			t.Fatalf("diagnosis missing in %v", body)
		}
		if got, _ := diagnosis["malignant"].(float64); got != 0.82 {
			t.Errorf("malignant = %v, want 0.82", diagnosis["malignant"])
		}
		if got, _ := diagnosis["benign"].(float64); got != 0.18 {
			t.Errorf("benign = %v, want 0.18", diagnosis["benign"])
		}

		if got, _ := body["image_url"].(string); got != "/cases/"+caseID+"/image" {
			t.Errorf("image_url = %v", body["image_url"])
		}
	})

	t.Run("DownloadImage", func(t *testing.T) {
		rec := app.doGet(t, "/cases/"+caseID+"/image", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", ct)
		}
		if !bytes.Equal(rec.Body.Bytes(), image) {
			t.Errorf("downloaded image differs from upload: got %d bytes, sent %d",
				rec.Body.Len(), len(image))
		}
	})

	t.Run("FetchUnknown", func(t *testing.T) {
		rec := app.doGet(t, "/cases/"+uuid.NewString(), token)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404; body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestCaseWithoutDiagnosisService(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	app := newTestApp(t, "") // no classifier configured

	app.registerDoctor(t, "solo@clinic.example", "Omar Haddad", "doctor-pass")
	token := app.login(t, "solo@clinic.example", "doctor-pass")
	app.registerPatient(t, token, 20001, "Lena Park")

	rec := app.uploadCase(t, token, 20001, []string{"itchy patch"}, "spot.jpg", testImage(2048))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create without classifier: status = %d, body %s", rec.Code, rec.Body.String())
	}
	caseID, _ := decodeBody(t, rec)["case_id"].(string)

	rec = app.doGet(t, "/cases/"+caseID, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["diagnosis"] != nil {
		t.Errorf("diagnosis = %v, want null when no classifier is configured", body["diagnosis"])
	}
	if n := countRows(t, ctx, "images"); n != 1 {
		t.Errorf("images stored = %d, want 1", n)
	}
}

func TestCaseListingStableOrder(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	app := newTestApp(t, "")

	app.registerDoctor(t, "lister@clinic.example", "Mia Novak", "doctor-pass")
	token := app.login(t, "lister@clinic.example", "doctor-pass")
	patientBody := app.registerPatient(t, token, 30001, "Sam Ortiz")
	patientObj, _ := patientBody["patient"].(map[string]interface{})
	patientID, _ := patientObj["patient_id"].(string)

	created := make([]string, 0, 3)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		rec := app.uploadCase(t, token, 30001, []string{"note for " + name}, name, testImage(1024))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: status = %d, body %s", name, rec.Code, rec.Body.String())
		}
		id, _ := decodeBody(t, rec)["case_id"].(string)
		created = append(created, id)
	}

	// A case by another doctor for the same patient must not leak into the
	// first doctor's list.
	app.registerDoctor(t, "other@clinic.example", "Theo Lang", "doctor-pass")
	otherToken := app.login(t, "other@clinic.example", "doctor-pass")
	if rec := app.uploadCase(t, otherToken, 30001, []string{"second opinion"}, "d.png", testImage(1024)); rec.Code != http.StatusCreated {
		t.Fatalf("create for other doctor: status = %d, body %s", rec.Code, rec.Body.String())
	}

	listIDs := func(t *testing.T, path string) []string {
		t.Helper()
		rec := app.doGet(t, path, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: status = %d, body %s", path, rec.Code, rec.Body.String())
		}
		items, _ := decodeBody(t, rec)["cases"].([]interface{})
		ids := make([]string, 0, len(items))
		for _, item := range items {
			m, _ := item.(map[string]interface{})
			id, _ := m["case_id"].(string)
			ids = append(ids, id)
		}
		return ids
	}

	t.Run("MyCasesOldestFirst", func(t *testing.T) {
		ids := listIDs(t, "/get_cases")
		if len(ids) != 3 {
			t.Fatalf("got %d cases, want 3", len(ids))
		}
		for i, want := range created {
			if ids[i] != want {
				t.Errorf("cases[%d] = %s, want %s (creation order)", i, ids[i], want)
			}
		}
	})

	t.Run("OrderIsStableAcrossCalls", func(t *testing.T) {
		first := listIDs(t, "/get_cases")
		for i := 0; i < 3; i++ {
			again := listIDs(t, "/get_cases")
			if len(again) != len(first) {
				t.Fatalf("list length changed between calls: %d vs %d", len(first), len(again))
			}
			for j := range first {
				if again[j] != first[j] {
					t.Fatalf("order changed between calls at index %d: %s vs %s", j, first[j], again[j])
				}
			}
		}
	})

	t.Run("ByPatient", func(t *testing.T) {
		// The patient view spans both doctors.
		ids := listIDs(t, "/cases/patient/"+patientID)
		if len(ids) != 4 {
			t.Fatalf("got %d cases for patient, want 4", len(ids))
		}
		for i, want := range created {
			if ids[i] != want {
				t.Errorf("cases[%d] = %s, want %s", i, ids[i], want)
			}
		}
	})

	t.Run("ByPatientNoCases", func(t *testing.T) {
		rec := app.doGet(t, "/cases/patient/"+uuid.NewString(), token)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404; body %s", rec.Code, rec.Body.String())
		}
		if got := decodeBody(t, rec)["message"]; got != "No cases found for the given patient ID." {
			t.Errorf("message = %v", got)
		}
	})
}

func TestCaseUnknownPatientStoresNothing(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	app := newTestApp(t, "")

	app.registerDoctor(t, "strict@clinic.example", "Ivan Petrov", "doctor-pass")
	token := app.login(t, "strict@clinic.example", "doctor-pass")

	rec := app.uploadCase(t, token, 40404, []string{"note"}, "lesion.png", testImage(1024))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["message"]; got != "Patient not found." {
		t.Errorf("message = %v", got)
	}

	// The failed request must not leave an image behind.
	if n := countRows(t, ctx, "images"); n != 0 {
		t.Errorf("images stored = %d, want 0 after rejected case", n)
	}
	if n := countRows(t, ctx, "image_chunks"); n != 0 {
		t.Errorf("image chunks stored = %d, want 0 after rejected case", n)
	}
	if n := countRows(t, ctx, "cases"); n != 0 {
		t.Errorf("cases stored = %d, want 0 after rejected case", n)
	}
}

func TestCaseRejectsUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	app := newTestApp(t, "")

	app.registerDoctor(t, "fmt@clinic.example", "Noor Aziz", "doctor-pass")
	token := app.login(t, "fmt@clinic.example", "doctor-pass")
	app.registerPatient(t, token, 50001, "Max Webber")

	rec := app.uploadCase(t, token, 50001, nil, "report.pdf", []byte("%PDF-1.4 not an image"))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415; body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["message"]; got != "Unsupported file format 'report.pdf'. Allowed formats: PNG, JPG, JPEG." {
		t.Errorf("message = %v", got)
	}
	if n := countRows(t, ctx, "images"); n != 0 {
		t.Errorf("images stored = %d, want 0 after rejected upload", n)
	}
}
