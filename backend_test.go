package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/session"
)

const (
	testToken    = "test-token"
	testEmail    = "ann@example.com"
	testPassword = "correct horse"
)

// storedShare is one share link kept by fakeBackend.
type storedShare struct {
	link        api.ShareLink
	fileID      string
	expired     bool
	rechallenge bool // validate answers with a new password challenge
}

// fakeBackend is an in-memory vaultbox server: file records, a presigned
// storage area, and share links.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	nextID   int
	files    map[string]*api.FileRecord
	content  map[string][]byte
	shares   map[string]*storedShare // by token
	redirect map[string]bool         // downloads answered with a storage redirect

	failTransfer bool
	failFinalize bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:        t,
		files:    make(map[string]*api.FileRecord),
		content:  make(map[string][]byte),
		shares:   make(map[string]*storedShare),
		redirect: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", b.handleLogin)
	mux.HandleFunc("POST /api/register", b.handleRegister)
	mux.HandleFunc("GET /api/files", b.authed(b.handleListFiles))
	mux.HandleFunc("DELETE /api/files/{id}", b.authed(b.handleDeleteFile))
	mux.HandleFunc("PUT /api/files/restore/{id}", b.authed(b.handleRestoreFile))
	mux.HandleFunc("GET /api/files/{id}/download", b.authed(b.handleDownload))
	mux.HandleFunc("POST /api/files/presigned", b.authed(b.handleReserve))
	mux.HandleFunc("POST /api/files/encrypted", b.authed(b.handleEncrypted))
	mux.HandleFunc("POST /api/files/{id}/finalize", b.authed(b.handleFinalize))
	mux.HandleFunc("PUT /storage/{id}", b.handleStoragePut)
	mux.HandleFunc("GET /storage/{id}", b.handleStorageGet)
	mux.HandleFunc("POST /api/shares", b.authed(b.handleCreateShare))
	mux.HandleFunc("GET /api/shares/get/{id}", b.authed(b.handleListShares))
	mux.HandleFunc("DELETE /api/shares/{id}", b.authed(b.handleDeleteShare))
	mux.HandleFunc("GET /api/shares/{token}", b.handleFetchShare)
	mux.HandleFunc("POST /api/shares/{token}/validate", b.handleValidateShare)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	return b
}

// addFile stores an available file and returns its ID.
func (b *fakeBackend) addFile(filePath string, data []byte, encrypted bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.newIDLocked()
	b.files[id] = &api.FileRecord{
		ID: id, FilePath: filePath, Size: int64(len(data)), IsEncrypted: encrypted, Status: api.StatusUploaded,
	}
	b.content[id] = data

	return id
}

// addShare creates a share link for fileID and returns its token.
func (b *fakeBackend) addShare(fileID, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.addShareLocked(fileID, password)
}

func (b *fakeBackend) addShareLocked(fileID, password string) string {
	b.nextID++
	token := fmt.Sprintf("tok-%d", b.nextID)
	b.shares[token] = &storedShare{
		link:   api.ShareLink{ID: fmt.Sprintf("link-%d", b.nextID), Token: token, Password: password},
		fileID: fileID,
	}

	return token
}

// expireShare makes every later request for token fail with 403.
func (b *fakeBackend) expireShare(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shares[token].expired = true
}

// rechallengeShare makes password validation for token answer with a new
// challenge.
func (b *fakeBackend) rechallengeShare(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shares[token].rechallenge = true
}

func (b *fakeBackend) shareState(s *storedShare) (expired, rechallenge bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return s.expired, s.rechallenge
}

// setFailures makes presigned transfers or finalize calls fail.
func (b *fakeBackend) setFailures(transfer, finalize bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failTransfer = transfer
	b.failFinalize = finalize
}

// redirectDownloads answers downloads of id with a storage redirect.
func (b *fakeBackend) redirectDownloads(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.redirect[id] = true
}

func (b *fakeBackend) file(id string) (api.FileRecord, []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[id]
	if !ok {
		return api.FileRecord{}, nil, false
	}

	return *f, b.content[id], true
}

func (b *fakeBackend) findByPath(filePath string) (api.FileRecord, []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, f := range b.files {
		if f.FilePath == filePath {
			return *f, b.content[id], true
		}
	}

	return api.FileRecord{}, nil, false
}

func (b *fakeBackend) newIDLocked() string {
	b.nextID++
	return fmt.Sprintf("f%d", b.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (b *fakeBackend) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		h(w, r)
	}
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != testPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": testToken})
}

func (b *fakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}

	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Username == "taken" {
		writeError(w, http.StatusConflict, "username already exists")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (b *fakeBackend) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files := make([]api.FileRecord, 0, len(b.files))
	for _, f := range b.files {
		files = append(files, *f)
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (b *fakeBackend) setStatus(w http.ResponseWriter, id, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	f.Status = status
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	b.setStatus(w, r.PathValue("id"), api.StatusDeleting)
}

func (b *fakeBackend) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	b.setStatus(w, r.PathValue("id"), api.StatusUploaded)
}

func (b *fakeBackend) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f, data, ok := b.file(id)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	b.mu.Lock()
	redirect := b.redirect[id]
	b.mu.Unlock()

	if redirect {
		http.Redirect(w, r, b.srv.URL+"/storage/"+id, http.StatusFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(f.FilePath)))
	_, _ = w.Write(data)
}

func (b *fakeBackend) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"file_path"`
		Size     int64  `json:"size"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	b.mu.Lock()
	id := b.newIDLocked()
	b.files[id] = &api.FileRecord{ID: id, FilePath: req.FilePath, Size: req.Size, Status: api.StatusPending}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"file_id":    id,
		"upload_url": b.srv.URL + "/storage/" + id + "?sig=test",
	})
}

func (b *fakeBackend) handleStoragePut(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		b.t.Errorf("presigned PUT carried an Authorization header")
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failTransfer {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	b.content[r.PathValue("id")] = data
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleStorageGet(w http.ResponseWriter, r *http.Request) {
	f, data, ok := b.file(r.PathValue("id"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(f.FilePath)))
	_, _ = w.Write(data)
}

func (b *fakeBackend) handleFinalize(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failFinalize {
		writeError(w, http.StatusInternalServerError, "finalize unavailable")
		return
	}

	f, ok := b.files[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	f.Status = api.StatusUploaded
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleEncrypted(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	b.mu.Lock()
	id := b.newIDLocked()
	rec := &api.FileRecord{
		ID: id, FilePath: r.FormValue("file_path"), Size: int64(len(data)), IsEncrypted: true, Status: api.StatusUploaded,
	}
	b.files[id] = rec
	b.content[id] = data
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"file": rec})
}

func (b *fakeBackend) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID   string `json:"file_id"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[req.FileID]; !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	b.addShareLocked(req.FileID, req.Password)
	w.WriteHeader(http.StatusCreated)
}

func (b *fakeBackend) handleListShares(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	links := []api.ShareLink{}

	for _, s := range b.shares {
		if s.fileID == r.PathValue("id") {
			links = append(links, s.link)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (b *fakeBackend) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for token, s := range b.shares {
		if s.link.ID == r.PathValue("id") {
			delete(b.shares, token)
			w.WriteHeader(http.StatusNoContent)

			return
		}
	}

	writeError(w, http.StatusNotFound, "link not found")
}

func (b *fakeBackend) lookupShare(token string) (*storedShare, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.shares[token]

	return s, ok
}

func (b *fakeBackend) serveShare(w http.ResponseWriter, s *storedShare) {
	f, data, ok := b.file(s.fileID)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	b.mu.Lock()
	redirect := b.redirect[s.fileID]
	b.mu.Unlock()

	if redirect {
		writeJSON(w, http.StatusOK, map[string]string{"redirect": b.srv.URL + "/storage/" + s.fileID})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(f.FilePath)))
	_, _ = w.Write(data)
}

func (b *fakeBackend) handleFetchShare(w http.ResponseWriter, r *http.Request) {
	s, ok := b.lookupShare(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "Share not found")
		return
	}

	if s.link.Password != "" {
		writeError(w, http.StatusUnauthorized, "password_required")
		return
	}

	b.serveShare(w, s)
}

func (b *fakeBackend) handleValidateShare(w http.ResponseWriter, r *http.Request) {
	s, ok := b.lookupShare(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "Share not found")
		return
	}

	var req struct {
		Password string `json:"password"`
	}

	expired, rechallenge := b.shareState(s)

	if expired {
		writeError(w, http.StatusForbidden, "Link expired")
		return
	}

	if rechallenge {
		writeError(w, http.StatusUnauthorized, "password_required")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != s.link.Password {
		writeError(w, http.StatusBadRequest, "Invalid password")
		return
	}

	b.serveShare(w, s)
}

// cliEnv isolates one CLI invocation sequence: its own data directory and
// config file, pointed at a fake backend.
type cliEnv struct {
	t          *testing.T
	backend    *fakeBackend
	dataDir    string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	t.Setenv("VAULTBOX_CONFIG", "")
	t.Setenv("VAULTBOX_SERVER_URL", "")
	t.Setenv("VAULTBOX_DATA_DIR", dataDir)

	return &cliEnv{
		t:          t,
		backend:    newFakeBackend(t),
		dataDir:    dataDir,
		configPath: filepath.Join(dir, "config.toml"),
	}
}

// login stores a valid session without going through the login command.
func (e *cliEnv) login() {
	e.t.Helper()

	meta := map[string]string{session.MetaEmail: testEmail, session.MetaServer: e.backend.srv.URL}
	require.NoError(e.t, session.Save(filepath.Join(e.dataDir, "session.json"), session.NewToken(testToken), meta))
}

// writeConfig replaces the config file.
func (e *cliEnv) writeConfig(content string) {
	e.t.Helper()

	require.NoError(e.t, os.WriteFile(e.configPath, []byte(content), 0o600))
}

// run executes the CLI with stdin and returns stdout, stderr and the error.
func (e *cliEnv) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", e.backend.srv.URL, "--config", e.configPath}, args...))

	err := cmd.ExecuteContext(e.t.Context())

	return stdout.String(), stderr.String(), err
}

// mustRun is run that fails the test on error.
func (e *cliEnv) mustRun(stdin string, args ...string) (string, string) {
	e.t.Helper()

	stdout, stderr, err := e.run(stdin, args...)
	require.NoError(e.t, err, "vaultbox %v\nstdout: %s\nstderr: %s", args, stdout, stderr)

	return stdout, stderr
}
