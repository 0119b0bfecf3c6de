package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certify/internal/platform/issuer"
	"certify/internal/registry/handler/mocks"
	"certify/internal/registry/models"
	"certify/pkg/digest"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const sampleDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	registry *mocks.MockService
	tokens   *issuer.Service
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockService(s.ctrl)
	s.tokens = issuer.NewService("test-signing-key", "certify", "certify-registry", time.Hour)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.registry, issuer.RequireIssuer(s.tokens, logger), logger,
		WithNetworkID("certify-test"),
		WithMaxDocumentSize(1024),
	)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) token(scopes ...string) string {
	tok, _, err := s.tokens.Issue(context.Background(), "registrar@campus", scopes...)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any, token string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func documentRequest(path, field string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile(field, "ijazah.pdf")
	_, _ = part.Write(content)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *HandlerSuite) assertError(w *httptest.ResponseRecorder, status int, code string) {
	s.Equal(status, w.Code)
	var body httputil.ErrorResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&body))
	s.Equal(code, body.Error)
}

func (s *HandlerSuite) TestInsert() {
	body := InsertRequest{
		IdentityKey:      "123456789",
		OwnerName:        "John Doe",
		Program:          "Teknik Informatika",
		GraduationPeriod: "2024",
		DocumentDigest:   sampleDigest,
	}

	s.Run("issuer token commits and returns receipt", func() {
		s.registry.EXPECT().Insert(gomock.Any(), body.Command()).
			DoAndReturn(func(ctx context.Context, _ models.InsertCommand) (*models.Receipt, error) {
				s.Equal("registrar@campus", requestcontext.Issuer(ctx))
				return &models.Receipt{Sequence: 1, TxID: "01J5", Operation: models.OperationInsert, IdentityKey: "123456789"}, nil
			})

		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, s.token()))
		s.Equal(http.StatusCreated, w.Code)
		var receipt models.Receipt
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&receipt))
		s.Equal(uint64(1), receipt.Sequence)
	})

	s.Run("empty fields are accepted", func() {
		s.registry.EXPECT().Insert(gomock.Any(), models.InsertCommand{}).Return(&models.Receipt{Sequence: 2}, nil)

		w := s.do(jsonRequest(http.MethodPost, "/credentials", InsertRequest{}, s.token()))
		s.Equal(http.StatusCreated, w.Code)
	})

	s.Run("missing token is signer_required", func() {
		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, ""))
		s.assertError(w, http.StatusUnauthorized, issuer.ErrorSignerRequired)
	})

	s.Run("forged token is signer_rejected", func() {
		forged := issuer.NewService("other-key", "certify", "certify-registry", time.Hour)
		tok, _, err := forged.Issue(context.Background(), "mallory")
		s.Require().NoError(err)

		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, tok))
		s.assertError(w, http.StatusUnauthorized, issuer.ErrorSignerRejected)
	})

	s.Run("token without write scope is forbidden", func() {
		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, s.token("credentials:read")))
		s.assertError(w, http.StatusForbidden, issuer.ErrorSignerRejected)
	})

	s.Run("oversized field is a validation error", func() {
		long := body
		long.OwnerName = strings.Repeat("x", 513)
		w := s.do(jsonRequest(http.MethodPost, "/credentials", long, s.token()))
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed json is bad request", func() {
		req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+s.token())
		w := s.do(req)
		s.assertError(w, http.StatusBadRequest, "bad_request")
	})

	s.Run("non-json content type is rejected", func() {
		req := jsonRequest(http.MethodPost, "/credentials", body, s.token())
		req.Header.Set("Content-Type", "text/plain")
		w := s.do(req)
		s.assertError(w, http.StatusUnsupportedMediaType, "invalid_content_type")
	})

	s.Run("ledger unavailable maps to 503", func() {
		s.registry.EXPECT().Insert(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeUnavailable, "failed to commit insert"))

		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, s.token()))
		s.assertError(w, http.StatusServiceUnavailable, "ledger_unavailable")
	})

	s.Run("commit timeout maps to 504", func() {
		s.registry.EXPECT().Insert(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeTimeout, "transaction aborted"))

		w := s.do(jsonRequest(http.MethodPost, "/credentials", body, s.token()))
		s.assertError(w, http.StatusGatewayTimeout, "ledger_timeout")
	})
}

func (s *HandlerSuite) TestInvalidate() {
	s.Run("issuer token commits", func() {
		s.registry.EXPECT().Invalidate(gomock.Any(), models.IdentityKey("123456789")).
			Return(&models.Receipt{Sequence: 3, Operation: models.OperationInvalidate}, nil)

		w := s.do(jsonRequest(http.MethodPost, "/credentials/123456789/invalidate", nil, s.token()))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("requires issuer", func() {
		w := s.do(jsonRequest(http.MethodPost, "/credentials/123456789/invalidate", nil, ""))
		s.assertError(w, http.StatusUnauthorized, issuer.ErrorSignerRequired)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("lookup of unknown key returns the zero record", func() {
		s.registry.EXPECT().Lookup(gomock.Any(), models.IdentityKey("999999999")).Return(models.CredentialRecord{}, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/credentials/999999999", nil))
		s.Equal(http.StatusOK, w.Code)
		var rec models.CredentialRecord
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&rec))
		s.Equal(models.CredentialRecord{}, rec)
	})

	s.Run("escaped key is unescaped", func() {
		s.registry.EXPECT().Lookup(gomock.Any(), models.IdentityKey("NIM/2024/01")).Return(models.CredentialRecord{}, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/credentials/NIM%2F2024%2F01", nil))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("registered", func() {
		s.registry.EXPECT().IsRegistered(gomock.Any(), models.IdentityKey("123456789")).Return(true, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/credentials/123456789/registered", nil))
		s.Equal(http.StatusOK, w.Code)
		var res RegisteredResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&res))
		s.True(res.Registered)
	})

	s.Run("verify needs no token", func() {
		s.registry.EXPECT().VerifyDigest(gomock.Any(), models.IdentityKey("123456789"), sampleDigest).Return(true, nil)

		w := s.do(jsonRequest(http.MethodPost, "/credentials/123456789/verify", VerifyRequest{DocumentDigest: sampleDigest}, ""))
		s.Equal(http.StatusOK, w.Code)
		var res VerifyResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&res))
		s.True(res.Valid)
	})

	s.Run("multi-byte path key is measured in characters", func() {
		key := strings.Repeat("é", 200)
		s.registry.EXPECT().IsRegistered(gomock.Any(), models.IdentityKey(key)).Return(true, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/credentials/"+url.PathEscape(key)+"/registered", nil))
		s.Equal(http.StatusOK, w.Code)

		w = s.do(httptest.NewRequest(http.MethodGet, "/credentials/"+url.PathEscape(strings.Repeat("é", 257)), nil))
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("store failure maps to 503", func() {
		s.registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(models.CredentialRecord{}, dErrors.New(dErrors.CodeUnavailable, "down"))

		w := s.do(httptest.NewRequest(http.MethodGet, "/credentials/123456789", nil))
		s.assertError(w, http.StatusServiceUnavailable, "ledger_unavailable")
	})
}

func (s *HandlerSuite) TestQueryAddressedRoutes() {
	s.Run("empty key is looked up", func() {
		s.registry.EXPECT().Lookup(gomock.Any(), models.IdentityKey("")).Return(models.CredentialRecord{}, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/registry/credential?identity_key=", nil))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing parameter is a bad request", func() {
		w := s.do(httptest.NewRequest(http.MethodGet, "/registry/registered", nil))
		s.assertError(w, http.StatusBadRequest, "bad_request")
	})

	s.Run("reserved characters survive the query string", func() {
		key := "NIM/2024 01?x=1"
		s.registry.EXPECT().IsRegistered(gomock.Any(), models.IdentityKey(key)).Return(true, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/registry/registered?"+url.Values{"identity_key": {key}}.Encode(), nil))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("verify reads the key from the query", func() {
		s.registry.EXPECT().VerifyDigest(gomock.Any(), models.IdentityKey(""), sampleDigest).Return(false, nil)

		w := s.do(jsonRequest(http.MethodPost, "/registry/verify?identity_key=", VerifyRequest{DocumentDigest: sampleDigest}, ""))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("invalidate still requires an issuer", func() {
		w := s.do(jsonRequest(http.MethodPost, "/registry/invalidate?identity_key=", nil, ""))
		s.assertError(w, http.StatusUnauthorized, issuer.ErrorSignerRequired)

		s.registry.EXPECT().Invalidate(gomock.Any(), models.IdentityKey("")).
			Return(&models.Receipt{Sequence: 4, Operation: models.OperationInvalidate}, nil)
		w = s.do(jsonRequest(http.MethodPost, "/registry/invalidate?identity_key=", nil, s.token()))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("oversized key is rejected", func() {
		w := s.do(httptest.NewRequest(http.MethodGet, "/registry/credential?identity_key="+strings.Repeat("9", 257), nil))
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestDocuments() {
	content := []byte("hello world")
	want := digest.Sum(content)

	s.Run("verify-document digests the upload", func() {
		s.registry.EXPECT().VerifyDigest(gomock.Any(), models.IdentityKey("123456789"), want).Return(true, nil)

		w := s.do(documentRequest("/credentials/123456789/verify-document", DocumentField, content))
		s.Equal(http.StatusOK, w.Code)
		var res DocumentVerifyResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&res))
		s.True(res.Valid)
		s.Equal(want, res.DocumentDigest)
		s.Equal("sha256", res.Algorithm)
	})

	s.Run("digest endpoint", func() {
		w := s.do(documentRequest("/digest", DocumentField, content))
		s.Equal(http.StatusOK, w.Code)
		var res DigestResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&res))
		s.Equal(want, res.DocumentDigest)
		s.Equal(int64(len(content)), res.Size)
		alg, fromCID, err := digest.DigestFromCID(res.CID)
		s.Require().NoError(err)
		s.Equal(digest.SHA256, alg)
		s.Equal(want, fromCID)
	})

	s.Run("missing document field", func() {
		w := s.do(documentRequest("/digest", "file", content))
		s.assertError(w, http.StatusBadRequest, "bad_request")
	})

	s.Run("document over the limit", func() {
		w := s.do(documentRequest("/digest", DocumentField, bytes.Repeat([]byte("a"), 1025)))
		s.assertError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
	})

	s.Run("json body is rejected", func() {
		w := s.do(jsonRequest(http.MethodPost, "/digest", map[string]string{}, ""))
		s.assertError(w, http.StatusUnsupportedMediaType, "invalid_content_type")
	})
}

func (s *HandlerSuite) TestLedger() {
	s.Run("commit lookup", func() {
		s.registry.EXPECT().Commit(gomock.Any(), uint64(5)).Return(&models.Receipt{Sequence: 5, TxID: "01J5"}, nil)

		w := s.do(httptest.NewRequest(http.MethodGet, "/ledger/commits/5", nil))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("unknown commit is 404", func() {
		s.registry.EXPECT().Commit(gomock.Any(), uint64(6)).Return(nil, dErrors.New(dErrors.CodeNotFound, "commit not found"))

		w := s.do(httptest.NewRequest(http.MethodGet, "/ledger/commits/6", nil))
		s.assertError(w, http.StatusNotFound, "not_found")
	})

	s.Run("bad sequence", func() {
		for _, seq := range []string{"0", "-1", "abc"} {
			w := s.do(httptest.NewRequest(http.MethodGet, "/ledger/commits/"+seq, nil))
			s.assertError(w, http.StatusBadRequest, "bad_request")
		}
	})

	s.Run("network", func() {
		w := s.do(httptest.NewRequest(http.MethodGet, "/network", nil))
		s.Equal(http.StatusOK, w.Code)
		var res NetworkResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&res))
		s.Equal("certify-test", res.NetworkID)
		s.Equal("sha256", res.DigestAlgorithm)
	})
}
