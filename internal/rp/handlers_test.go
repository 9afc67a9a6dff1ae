package rp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParleSec/LetsAuth/internal/crypto"
	"github.com/ParleSec/LetsAuth/internal/delivery"
	"github.com/ParleSec/LetsAuth/internal/idp"
	"github.com/ParleSec/LetsAuth/internal/origin"
	"github.com/ParleSec/LetsAuth/internal/store"
	"github.com/ParleSec/LetsAuth/pkg/models"
)

// startIdP runs a complete identity provider on a loopback listener,
// returning its server and canonical origin.
func startIdP(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	keySet, err := crypto.NewKeySet()
	require.NoError(t, err)

	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	router := chi.NewRouter()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	issuer, err := origin.Canonicalize(srv.URL)
	require.NoError(t, err)

	signer := crypto.NewSigner(keySet, issuer, 10*time.Minute)
	svc := idp.NewService(mem, signer, delivery.LogSink{}, srv.URL, 15*time.Minute)
	idp.NewHandlers(svc, keySet, true).RegisterRoutes(router)

	return srv, issuer
}

func startRP(t *testing.T, idpBaseURL string, session SessionStarter) *httptest.Server {
	t.Helper()

	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	fetcher := crypto.NewJWKSFetcher(5 * time.Minute)
	verifier, err := NewVerifier(fetcher, mem, idpBaseURL, "https://rp.example", 5*time.Minute)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandlers(verifier, session).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// obtainAssertion walks the full IdP flow: issue, extract the link from
// the debug response, confirm.
func obtainAssertion(t *testing.T, idpSrv *httptest.Server) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"email":    "alice@example.com",
		"endpoint": "https://rp.example/authback",
	})
	require.NoError(t, err)
	resp, err := http.Post(idpSrv.URL+"/auth", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var auth models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	require.NotEmpty(t, auth.Link)

	link, err := url.Parse(auth.Link)
	require.NoError(t, err)
	confirmResp, err := http.Get(idpSrv.URL + "/confirm?" + link.RawQuery)
	require.NoError(t, err)
	defer confirmResp.Body.Close()
	require.Equal(t, http.StatusOK, confirmResp.StatusCode)

	var confirm models.ConfirmResponse
	require.NoError(t, json.NewDecoder(confirmResp.Body).Decode(&confirm))
	require.NotEmpty(t, confirm.Assertion)
	return confirm.Assertion
}

func postAuthback(t *testing.T, rpURL, assertion string) *http.Response {
	t.Helper()
	body, err := json.Marshal(models.AuthbackRequest{Assertion: assertion})
	require.NoError(t, err)
	resp, err := http.Post(rpURL+"/authback", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthbackEndToEnd(t *testing.T) {
	idpSrv, issuer := startIdP(t)

	var sessionEmail string
	rpSrv := startRP(t, issuer, func(w http.ResponseWriter, r *http.Request, email string) {
		sessionEmail = email
	})

	assertion := obtainAssertion(t, idpSrv)

	resp := postAuthback(t, rpSrv.URL, assertion)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body models.AuthbackResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice@example.com", body.Email)
	assert.Equal(t, "alice@example.com", sessionEmail)
}

func TestAuthbackReplayRejected(t *testing.T) {
	idpSrv, issuer := startIdP(t)
	rpSrv := startRP(t, issuer, nil)

	assertion := obtainAssertion(t, idpSrv)

	resp := postAuthback(t, rpSrv.URL, assertion)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	replay := postAuthback(t, rpSrv.URL, assertion)
	require.Equal(t, http.StatusUnauthorized, replay.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(replay.Body).Decode(&body))
	assert.Equal(t, "authentication_failed", body.Error)
}

func TestAuthbackTamperedAssertion(t *testing.T) {
	idpSrv, issuer := startIdP(t)
	rpSrv := startRP(t, issuer, nil)

	assertion := obtainAssertion(t, idpSrv)
	tampered := assertion[:len(assertion)-4] + "AAAA"

	resp := postAuthback(t, rpSrv.URL, tampered)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthbackBadRequest(t *testing.T) {
	rpSrv := startRP(t, "https://idp.example", nil)

	resp, err := http.Post(rpSrv.URL+"/authback", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	empty := postAuthback(t, rpSrv.URL, "")
	assert.Equal(t, http.StatusBadRequest, empty.StatusCode)
}

func TestAuthbackKeyFetchFailure(t *testing.T) {
	idpSrv, issuer := startIdP(t)
	rpSrv := startRP(t, issuer, nil)

	assertion := obtainAssertion(t, idpSrv)

	// With the IdP down and nothing cached, key resolution fails and the
	// RP answers retryable, not unauthorized.
	idpSrv.Close()

	resp := postAuthback(t, rpSrv.URL, assertion)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "temporarily_unavailable", body.Error)
}
