package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/domain/photo"
	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/photoproc"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 env,
		AuthSigningKey:      testSigningKey,
		CORSOrigins:         []string{"http://localhost:3000"},
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		RequestTimeout:      30 * time.Second,
		PhotoStore:          "memory",
		PhotoURLPrefix:      "/uploads/photos",
		MaxUploadSize:       10 << 20,
		PhotoTargetHeight:   720,
		PhotoByteBudget:     100 << 10,
		PhotoInitialQuality: 80,
		PhotoMinQuality:     50,
		PhotoQualityStep:    10,
		SignatureThreshold:  250,
		SignaturePadding:    15,
		WatermarkTimezone:   "UTC",
	}
}

func testEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	proc, err := photoproc.NewProcessor(processorOptions(cfg, time.UTC), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	store := blobstore.NewInMemoryStore(cfg.MaxUploadSize)
	svc := photo.NewService(store, proc, photo.NewUploadRepoMemory(), cfg.PhotoURLPrefix, cfg.MaxUploadSize, zerolog.Nop())
	return newEcho(cfg, zerolog.Nop(), svc, store, time.UTC, nil)
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if x >= 50 && x < 150 && y >= 50 && y < 100 {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func uploadBody(t *testing.T, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	fw, err := w.CreateFormFile("photo", "signature.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write(data)
	w.Close()
	return &body, w.FormDataContentType()
}

func hsToken(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestHealthEndpoints(t *testing.T) {
	e := testEcho(t, testConfig("production"))

	for path, field := range map[string]string{"/health": "version", "/health/db": "storage", "/api/openapi.json": "paths"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		var body map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body[field] == nil {
			t.Errorf("%s: missing %s in %s", path, field, rec.Body.String())
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id header", path)
		}
	}
}

func TestUploadRequiresToken(t *testing.T) {
	e := testEcho(t, testConfig("production"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos/uploads", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+hsToken(t, "clerk-1", "billing"))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-clinical role, got %d", rec.Code)
	}
}

func TestUploadAndDownloadSignature(t *testing.T) {
	e := testEcho(t, testConfig("production"))
	token := hsToken(t, "nurse-1", "nurse")

	body, ct := uploadBody(t, signaturePNG(t), map[string]string{
		"isSignature":     "true",
		"medicalRecordNo": "12345",
		"projectName":     "PT",
		"treatmentTime":   "2024-03-05T10:30:00Z",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos/upload", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res photo.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Processed {
		t.Fatalf("expected processed upload, got %+v", res)
	}

	req = httptest.NewRequest(http.MethodGet, res.URL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "image/png" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" || !bytes.Contains([]byte(got), []byte("img-src")) {
		t.Errorf("expected media CSP, got %q", got)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 130 {
		t.Errorf("expected crop width 130, got %d", b.Dx())
	}
}

func TestDevModeInjectsAdmin(t *testing.T) {
	e := testEcho(t, testConfig("development"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos/uploads", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 in development, got %d", rec.Code)
	}
}

func TestProcessorOptions(t *testing.T) {
	cfg := testConfig("development")
	cfg.PhotoTargetHeight = 480
	cfg.SignaturePadding = 4
	opts := processorOptions(cfg, time.UTC)

	if opts.Compress.TargetHeight != 480 || opts.Padding != 4 || opts.Threshold != 250 {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.Location != time.UTC {
		t.Errorf("location = %v", opts.Location)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("mapped options should validate: %v", err)
	}
}

func TestParseProcessTime(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-05T10:30:00Z", "2024-03-05 10:30", "2024-03-05T10:30", "2024-03-05 10:30:00"} {
		got, err := parseProcessTime(in, time.UTC)
		if err != nil || !got.Equal(want) {
			t.Errorf("parseProcessTime(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseProcessTime("tomorrow", time.UTC); err == nil {
		t.Error("expected error")
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := defaultOutputPath("/tmp/a/photo.jpeg", "jpeg"); got != "/tmp/a/photo.processed.jpg" {
		t.Errorf("got %q", got)
	}
	if got := defaultOutputPath("sig.png", "png"); got != "sig.processed.png" {
		t.Errorf("got %q", got)
	}
}

func TestProcessCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sig.png")
	if err := os.WriteFile(in, signaturePNG(t), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(dir, "out.png")

	cmd := processCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{in, "--signature", "--record-no", "12345", "--project", "PT", "--time", "2024-03-05 10:30", "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if blobstore.SniffContentType(data) != "image/png" {
		t.Error("expected PNG output for signature")
	}
	if !bytes.Contains(stdout.Bytes(), []byte("12345")) {
		t.Errorf("expected caption in output, got %s", stdout.String())
	}
}
