package api

import (
	"bytes"
	"clientreg/internal/backends/memory"
	"clientreg/internal/metrics"
	"clientreg/internal/registry"
	"clientreg/internal/secrets"
	"clientreg/internal/types"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type HandlerTestSuite struct {
	suite.Suite

	store  *memory.ClientStore
	server *Server
	router http.Handler
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	key, err := secrets.GenerateKey()
	s.Require().NoError(err)
	sealer, err := secrets.NewSealerFromHex(key)
	s.Require().NoError(err)

	s.store = memory.NewClientStore()
	svc := registry.NewService(s.store, memory.NewResponseCache(time.Minute), memory.NewSecretIndex(), sealer)
	s.server = NewServer(ServerOptions{Port: 8080, Metrics: metrics.Init()}, svc)
	s.router = s.server.Router()
}

func (s *HandlerTestSuite) do(method, path, body string, hdrs ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdrs); i += 2 {
		req.Header.Set(hdrs[i], hdrs[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerTestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *HandlerTestSuite) register(cnpj, nome string) string {
	rec := s.do(http.MethodPost, "/clientes", `{"cnpj":"`+cnpj+`","nome":"`+nome+`"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp registerResponse
	s.decode(rec, &resp)
	s.True(resp.Success)
	s.NotEmpty(resp.Token)
	return resp.Token
}

func (s *HandlerTestSuite) TestRegisterAndGet() {
	s.register("12345678000199", "Acme")

	rec := s.do(http.MethodGet, "/clientes/12345678000199", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"cnpj":"12345678000199","nome":"Acme"}`, rec.Body.String())
	s.NotEmpty(rec.Header().Get(RequestIDHdrName))
}

func (s *HandlerTestSuite) TestRegisterDuplicate() {
	s.register("1", "Acme")
	rec := s.do(http.MethodPost, "/clientes", `{"cnpj":"1","nome":"Other"}`)
	s.Equal(http.StatusConflict, rec.Code)
	s.JSONEq(`{"error":"client already exists"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestRegisterMissingFields() {
	rec := s.do(http.MethodPost, "/clientes", `{"cnpj":"1"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"missing required fields: nome"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/clientes", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"missing required fields: cnpj, nome"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestRegisterInvalidJSON() {
	rec := s.do(http.MethodPost, "/clientes", `{"cnpj":`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"invalid json"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestListOrderedAndFiltered() {
	rec := s.do(http.MethodGet, "/clientes", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())

	s.register("2", "Zeta")
	s.register("1", "Acme")

	rec = s.do(http.MethodGet, "/clientes", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[{"cnpj":"1","nome":"Acme"},{"cnpj":"2","nome":"Zeta"}]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/clientes?filter="+"starts_with(nome,%20'Z')", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[{"cnpj":"2","nome":"Zeta"}]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/clientes?filter="+"nome%20==", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"invalid filter expression"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestDelete() {
	s.register("1", "Acme")

	rec := s.do(http.MethodDelete, "/clientes/1", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"success":true,"cnpj":"1"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/clientes/1", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.JSONEq(`{"error":"client not found"}`, rec.Body.String())

	rec = s.do(http.MethodDelete, "/clientes/1", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerTestSuite) TestBlankCNPJ() {
	rec := s.do(http.MethodGet, "/clientes/%20", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"missing required fields: cnpj"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestMe() {
	token := s.register("1", "Acme")

	rec := s.do(http.MethodGet, "/me", "", types.ClientSecretHdrName, token)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"nome":"Acme"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/me", "", types.ClientSecretHdrName, "nope")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.JSONEq(`{"error":"invalid client secret"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestCNPJNamedMeIsAddressable() {
	s.register("me", "Acme")

	rec := s.do(http.MethodGet, "/clientes/me", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"cnpj":"me","nome":"Acme"}`, rec.Body.String())

	rec = s.do(http.MethodDelete, "/clientes/me", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"success":true,"cnpj":"me"}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestPersistenceErrorHidesCause() {
	status, msg := statusFor(types.Err(types.ErrPersistence, errors.New("pq: connection refused"), ""))
	s.Equal(http.StatusInternalServerError, status)
	s.Equal("internal error", msg)
}

func (s *HandlerTestSuite) TestRequestIDIsEchoed() {
	rec := s.do(http.MethodGet, "/health", "", RequestIDHdrName, "abc-123")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("abc-123", rec.Header().Get(RequestIDHdrName))
}

func (s *HandlerTestSuite) TestDrainUndrain() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/readyz", "").Code)

	rec := s.do(http.MethodGet, "/drain", "")
	s.JSONEq(`{"status":"draining"}`, rec.Body.String())
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/readyz", "").Code)
	rec = s.do(http.MethodGet, "/drain", "")
	s.JSONEq(`{"status":"already draining"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/undrain", "")
	s.JSONEq(`{"status":"ready"}`, rec.Body.String())
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/readyz", "").Code)
}

func (s *HandlerTestSuite) TestMetrics() {
	s.register("1", "Acme")
	rec := s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "clientreg_operations_total")
}

func TestRunServerInterruptible(t *testing.T) {
	key, _ := secrets.GenerateKey()
	sealer, err := secrets.NewSealerFromHex(key)
	if err != nil {
		t.Fatal(err)
	}
	svc := registry.NewService(memory.NewClientStore(), memory.NewResponseCache(time.Minute), memory.NewSecretIndex(), sealer)

	stop, done := RunServerInterruptible(ServerOptions{Port: 18089}, svc)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Post("http://127.0.0.1:18089/clientes", "application/json", bytes.NewBufferString(`{"cnpj":"1","nome":"Acme"}`))
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("unexpected status %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-ctx.Done():
		t.Fatal("server did not stop")
	}
}
