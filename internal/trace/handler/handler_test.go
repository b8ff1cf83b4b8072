package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agrotrace/agrotrace/internal/bridge"
	"github.com/agrotrace/agrotrace/internal/dossier"
	"github.com/agrotrace/agrotrace/internal/genealogy"
	"github.com/agrotrace/agrotrace/internal/identity"
	"github.com/agrotrace/agrotrace/internal/ledger"
	"github.com/agrotrace/agrotrace/internal/trace/handler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testIssuerURL   = "http://localhost:8080"
	testAdminSecret = "test-admin-secret"
)

// testEnv wires the full API surface over in-memory stores.
type testEnv struct {
	router   *gin.Engine
	store    *ledger.MemoryStore
	dossiers *dossier.MemoryStore
	tokens   *identity.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	store := ledger.NewMemoryStore()
	dossiers := dossier.NewMemoryStore()
	tokens := identity.NewTokenIssuer([]byte("test-secret"), testIssuerURL, time.Hour)

	minter := ledger.NewMinter(store, logger)
	br := bridge.NewStaticBridge(map[string]string{"50": "12"})
	resolver := genealogy.NewResolver(store, br, logger)
	cache := genealogy.NewCache(30 * time.Second)

	mintHandler := handler.NewMintHandler(minter, dossiers, tokens, logger)
	mintHandler.SetChainCache(cache)
	chainHandler := handler.NewChainHandler(resolver, cache, logger)
	ledgerHandler := handler.NewLedgerHandler(store, logger)
	dossierHandler := handler.NewDossierHandler(dossiers, logger)
	authHandler := handler.NewAuthHandler(tokens, testAdminSecret, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	mintHandler.Register(v1)
	chainHandler.Register(v1)
	ledgerHandler.Register(v1)
	dossierHandler.Register(v1)
	authHandler.Register(v1)

	return &testEnv{router: r, store: store, dossiers: dossiers, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := e.tokens.Issue("participant-1", role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// do issues a JSON request against the test router.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
